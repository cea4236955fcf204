// Package ping runs ICMP echo sessions against a single IPv4 destination.
//
// A Session sends one Echo Request at a time, waits a bounded time for the
// matching reply and reports exactly one Outcome per probe:
//
//	s, err := ping.Open(cfg, ping.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	for o := range s.Probes(ctx) {
//		fmt.Println(o)
//	}
//
// A reply matches the outstanding probe when its identifier and sequence
// number equal the request's. Echo Replies and ICMP error messages that quote
// the request (Destination Unreachable, Time Exceeded and friends) are
// considered; anything else received while waiting is discarded and the wait
// continues until the timeout. A match that arrives after the timeout counts
// as a timeout.
//
// Probes are paced so that consecutive sends are at least Config.Interval
// apart. Cancelling the context interrupts both the pacing wait and the
// receive wait and ends the stream; the interrupted probe is not reported.
package ping
