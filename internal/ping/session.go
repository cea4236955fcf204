package ping

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/postalsys/muti-ping/internal/icmp"
	"github.com/postalsys/muti-ping/internal/logging"
	"github.com/postalsys/muti-ping/internal/metrics"
)

// Option configures a Session.
type Option func(*Session)

// WithChannel makes the session use ch instead of opening its own. The
// session takes ownership of ch and closes it when done.
func WithChannel(ch icmp.Channel) Option {
	return func(s *Session) {
		s.ch = ch
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMetrics records session activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithClock replaces the clock used for send times, timestamps and RTT.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// openChannel is replaced in tests.
var openChannel = icmp.OpenChannel

// identifierBinder is implemented by channels whose kernel assigns the echo
// identifier.
type identifierBinder interface {
	BoundIdentifier() (uint16, bool)
}

// Session is an echo session against one destination. A session runs once;
// use Probes or Run to drive it.
type Session struct {
	cfg     Config
	ch      icmp.Channel
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	id      uint16
	payload []byte
	epoch   time.Time

	started   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg and opens the ICMP channel for a new session. A channel
// passed with WithChannel is closed when Open fails.
func Open(cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := cfg.Validate(); err != nil {
		if s.ch != nil {
			_ = s.ch.Close()
		}
		return nil, err
	}

	s.logger = s.logger.With(
		logging.KeyComponent, "ping",
		logging.KeyDestination, cfg.Destination.String())

	if s.ch == nil {
		ch, err := openChannel(cfg.Mode, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrChannelSetup, err)
		}
		s.ch = ch
	}

	s.id = cfg.Identifier
	if b, ok := s.ch.(identifierBinder); ok {
		if id, ok := b.BoundIdentifier(); ok {
			s.id = id
		}
	}
	s.payload = icmp.FillPayload(cfg.PayloadSize, cfg.Pattern)

	return s, nil
}

// Identifier returns the echo identifier used on the wire.
func (s *Session) Identifier() uint16 {
	return s.id
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Probes returns the stream of probe outcomes. The stream is lazy and can be
// consumed once; later calls yield nothing. The channel is closed when the
// stream ends, whether it completes, the context is cancelled or the consumer
// stops early.
func (s *Session) Probes(ctx context.Context) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		_ = s.run(ctx, yield)
	}
}

// Run sends probes until Count is reached or ctx is done, calling fn with
// every outcome. It returns ctx.Err() when cancelled and nil on completion.
func (s *Session) Run(ctx context.Context, fn func(Outcome)) error {
	return s.run(ctx, func(o Outcome) bool {
		fn(o)
		return true
	})
}

// Close releases the channel. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ch.Close()
	})
	return s.closeErr
}

func (s *Session) run(ctx context.Context, yield func(Outcome) bool) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer s.Close()

	if s.metrics != nil {
		s.metrics.RecordSessionStart()
		defer s.metrics.RecordSessionEnd()
	}

	s.logger.Info("echo session started",
		logging.KeyIdentifier, s.id,
		logging.KeyBytes, s.cfg.PayloadSize,
		logging.KeyCount, s.cfg.Count)

	s.epoch = s.now()
	limiter := rate.NewLimiter(rate.Every(s.cfg.Interval), 1)

	for seq := 1; s.cfg.Count == 0 || seq <= s.cfg.Count; seq++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Wait fails early when the next slot lies beyond the deadline.
			<-ctx.Done()
			return ctx.Err()
		}

		o := s.probe(ctx, seq)
		if err := ctx.Err(); err != nil {
			return err
		}
		s.record(o)

		if !yield(o) {
			return nil
		}
		if errors.Is(o.Err, icmp.ErrClosed) {
			return icmp.ErrClosed
		}
	}

	s.logger.Debug("echo session finished", logging.KeyCount, s.cfg.Count)
	return nil
}

// probe sends one request and waits for the matching message.
func (s *Session) probe(ctx context.Context, seq int) Outcome {
	wireSeq := uint16(seq)
	o := Outcome{Seq: seq}

	req := icmp.Request{ID: s.id, Seq: wireSeq, Payload: s.payload}
	o.Sent = s.now()
	if s.cfg.Timestamp {
		req.Timestamp = s.stamp(o.Sent)
		req.HasTimestamp = true
	}
	b := req.Marshal()

	if err := s.ch.Send(b, s.cfg.Destination); err != nil {
		o.Status = StatusTransportError
		o.Err = err
		return o
	}
	o.Transmitted = true
	if s.metrics != nil {
		s.metrics.RecordProbeSent(len(b))
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	for {
		d, err := s.ch.Receive(ctx, deadline)
		if err != nil {
			if errors.Is(err, icmp.ErrTimeout) {
				o.Status = StatusTimeout
			} else {
				o.Status = StatusTransportError
				o.Err = err
			}
			return o
		}
		if s.metrics != nil {
			s.metrics.RecordReceived(len(d.Data))
		}

		r, reason := s.match(d, wireSeq)
		if r != nil && arrival(d).Before(deadline) {
			s.classify(&o, r)
			return o
		}
		if r != nil {
			// Answered, but after the probe gave up on it.
			reason = metrics.DiscardLate
		}

		if s.metrics != nil {
			s.metrics.RecordDiscard(reason)
		}
		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.Debug("discarded datagram",
				logging.KeySequence, seq,
				logging.KeyReason, reason,
				"datagram", icmp.Describe(d))
		}

		if !time.Now().Before(deadline) {
			o.Status = StatusTimeout
			return o
		}
	}
}

// arrival returns when d reached the channel, falling back to now for
// channels that do not record it.
func arrival(d icmp.Datagram) time.Time {
	if d.Received.IsZero() {
		return time.Now()
	}
	return d.Received
}

// match decodes d and returns it when it answers the outstanding request.
// Otherwise it returns the discard reason.
func (s *Session) match(d icmp.Datagram, seq uint16) (*icmp.EchoReply, string) {
	ihl := 0
	if d.HeaderIncluded {
		n, err := icmp.IPv4HeaderLen(d.Data)
		if err != nil {
			return nil, metrics.DiscardDecode
		}
		ihl = n
	}

	if s.cfg.VerifyChecksum && !icmp.Valid(d.Data[ihl:]) {
		return nil, metrics.DiscardChecksum
	}

	r, err := icmp.DecodeReply(d.Data, ihl)
	if err != nil {
		return nil, metrics.DiscardDecode
	}

	if r.Type != icmp.TypeEchoReply && !r.Type.Quotes() {
		return nil, metrics.DiscardMismatch
	}
	if r.ID != s.id || r.Seq != seq {
		return nil, metrics.DiscardMismatch
	}
	if r.OriginalDst.IsValid() && r.OriginalDst != s.cfg.Destination {
		return nil, metrics.DiscardMismatch
	}

	r.Src = d.Src
	r.TTL = d.TTL
	return r, ""
}

func (s *Session) classify(o *Outcome, r *icmp.EchoReply) {
	o.Matched = s.now()
	o.Type = r.Type
	o.Code = r.Code
	o.From = r.Src
	o.TTL = r.TTL
	o.Bytes = r.Len

	switch r.Type {
	case icmp.TypeEchoReply:
		o.Status = StatusSuccess
		o.Bytes = r.Len - icmp.HeaderLen
		if s.cfg.Timestamp {
			o.Bytes = max(o.Bytes-icmp.TimestampLen, 0)
		}
	case icmp.TypeDestUnreach:
		o.Status = StatusUnreachable
	case icmp.TypeTimeExceeded:
		o.Status = StatusTTLExpired
	default:
		o.Status = StatusOtherICMP
	}

	if r.Type == icmp.TypeEchoReply && s.cfg.Timestamp && r.HasTimestamp {
		elapsed := s.stamp(o.Matched) - r.Timestamp
		if elapsed > 1<<31 {
			// Reply stamped in our future.
			elapsed = 0
		}
		o.RTT = time.Duration(elapsed) * time.Microsecond
	} else {
		o.RTT = o.Matched.Sub(o.Sent)
	}
	if o.RTT < 0 {
		o.RTT = 0
	}
	o.HasRTT = true
}

// stamp returns t as microseconds since the session epoch, truncated to 32
// bits.
func (s *Session) stamp(t time.Time) uint32 {
	return uint32(t.Sub(s.epoch).Microseconds())
}

func (s *Session) record(o Outcome) {
	if s.metrics != nil {
		rtt := -1.0
		if o.HasRTT && o.Status == StatusSuccess {
			rtt = o.RTT.Seconds()
		}
		s.metrics.RecordOutcome(o.Status.String(), rtt)
	}

	switch o.Status {
	case StatusTransportError:
		s.logger.Warn("probe failed",
			logging.KeySequence, o.Seq,
			logging.KeyError, o.Err)
	case StatusSuccess:
		s.logger.Debug("probe answered",
			logging.KeySequence, o.Seq,
			logging.KeyRTT, o.RTT,
			logging.KeyTTL, o.TTL)
	default:
		s.logger.Debug("probe finished",
			logging.KeySequence, o.Seq,
			logging.KeyStatus, o.Status.String(),
			"from", o.From)
	}
}
