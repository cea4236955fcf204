package ping

import (
	"math"
	"time"
)

// Statistics summarizes the outcomes of a session.
type Statistics struct {
	Sent     int
	Received int

	MinRTT time.Duration
	MaxRTT time.Duration

	byStatus [numStatuses]int

	// Running mean and sum of squared deviations of answered RTTs, in
	// nanoseconds.
	rttCount int
	mean     float64
	m2       float64
}

// Add accounts for one outcome.
func (st *Statistics) Add(o Outcome) {
	if o.Status >= 0 && o.Status < numStatuses {
		st.byStatus[o.Status]++
	}
	if o.Transmitted {
		st.Sent++
	}
	if o.Status != StatusSuccess {
		return
	}
	st.Received++

	if !o.HasRTT {
		return
	}
	if st.rttCount == 0 || o.RTT < st.MinRTT {
		st.MinRTT = o.RTT
	}
	if o.RTT > st.MaxRTT {
		st.MaxRTT = o.RTT
	}

	st.rttCount++
	x := float64(o.RTT)
	delta := x - st.mean
	st.mean += delta / float64(st.rttCount)
	st.m2 += delta * (x - st.mean)
}

// Count returns the number of outcomes with status s.
func (st *Statistics) Count(s Status) int {
	if s < 0 || s >= numStatuses {
		return 0
	}
	return st.byStatus[s]
}

// Lost returns the number of transmitted probes that were not answered.
func (st *Statistics) Lost() int {
	return st.Sent - st.Received
}

// LossPercent returns the share of transmitted probes that were not answered.
func (st *Statistics) LossPercent() float64 {
	if st.Sent == 0 {
		return 0
	}
	return float64(st.Lost()) * 100 / float64(st.Sent)
}

// AvgRTT returns the mean round-trip time of answered probes.
func (st *Statistics) AvgRTT() time.Duration {
	return time.Duration(math.Round(st.mean))
}

// StdDevRTT returns the population standard deviation of round-trip times.
func (st *Statistics) StdDevRTT() time.Duration {
	if st.rttCount == 0 {
		return 0
	}
	return time.Duration(math.Round(math.Sqrt(st.m2 / float64(st.rttCount))))
}

// HasRTT reports whether any round-trip time was recorded.
func (st *Statistics) HasRTT() bool {
	return st.rttCount > 0
}
