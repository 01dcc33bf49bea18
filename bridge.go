// The bridge between the engine's push-style sample callbacks and
// pull-style consumers. Delivery happens on engine threads and must
// stay O(1); consumers pace themselves through Next, and the
// configured policy decides what happens when they fall behind.
package gstkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Bridge errors.
var (
	ErrStreamClaimed = errors.New("pipeline sample stream already claimed")
	ErrStreamClosed  = errors.New("sample stream closed")
	ErrNoAppSink     = errors.New("pipeline has no app sink")
)

// DeliverPolicy decides what happens to samples the consumer has not
// pulled yet when new ones arrive.
type DeliverPolicy int

const (
	// DeliverLatest keeps at most Depth undelivered frames and drops
	// the oldest beyond that. Suits live consumers that want current
	// data over complete data.
	DeliverLatest DeliverPolicy = iota

	// DeliverAll queues every frame until the consumer pulls it.
	// Suits offline processing where completeness matters; memory
	// grows with consumer lag.
	DeliverAll
)

func (p DeliverPolicy) String() string {
	switch p {
	case DeliverLatest:
		return "latest"
	case DeliverAll:
		return "all"
	default:
		return "unknown"
	}
}

// StreamConfig configures a sample stream.
type StreamConfig struct {
	Policy DeliverPolicy // Delivery policy, DeliverLatest by default
	Depth  int           // DeliverLatest queue depth, 1 by default

	// Messages selects additional bus message kinds to observe.
	// Error and end-of-stream are always watched; they terminate the
	// stream. Everything else is discarded engine-side.
	Messages MessageKind

	// OnMessage receives observed non-terminal messages in bus order.
	// It runs on the stream's watch goroutine and must not block.
	OnMessage func(*Message)
}

// DefaultStreamConfig returns the live-consumer configuration: keep
// only the newest frame, watch only terminal messages.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{Policy: DeliverLatest, Depth: 1}
}

// StreamStats provides stream counters.
type StreamStats struct {
	Received  uint64 // Frames the engine handed over
	Delivered uint64 // Frames pulled by the consumer
	Dropped   uint64 // Frames discarded by DeliverLatest
}

// Stream converts the pipeline's sample callbacks into a pull stream.
// The pipeline must terminate in an app sink (see ToAppSink). A
// pipeline supports exactly one stream for its lifetime; further calls
// return ErrStreamClaimed.
//
// The stream's watcher claims the pipeline's bus, so Stream and
// Bus.Watch are mutually exclusive; a streaming pipeline observes
// messages through StreamConfig.OnMessage instead.
//
// Cancelling ctx closes the stream and drives the pipeline to
// StateNull. Call Stream before Play so no initial samples are missed.
func (p *Pipeline) Stream(ctx context.Context, cfg StreamConfig) (*SampleStream, error) {
	if p.sinkName == "" {
		return nil, ErrNoAppSink
	}
	depth := cfg.Depth
	if depth <= 0 {
		depth = 1
	}

	p.streamMu.Lock()
	defer p.streamMu.Unlock()
	if p.stream != nil {
		return nil, ErrStreamClaimed
	}
	// Each bus message is popped by exactly one poller, so the
	// stream's watcher takes the bus claim.
	if p.bus.claimed.Swap(true) {
		return nil, ErrWatchClaimed
	}

	wctx, cancel := context.WithCancel(ctx)
	s := &SampleStream{
		id:        uuid.NewString(),
		pipe:      p,
		policy:    cfg.Policy,
		depth:     depth,
		notify:    make(chan struct{}, 1),
		cancel:    cancel,
		watchDone: make(chan struct{}),
	}
	if err := p.eng.InstallSampleHandler(p.handle, p.sinkName, s.deliver); err != nil {
		p.bus.claimed.Store(false)
		cancel()
		return nil, fmt.Errorf("failed to install sample handler: %w", err)
	}
	p.stream = s

	go s.watchBus(wctx, cfg.Messages|messageTerminal, cfg.OnMessage)
	context.AfterFunc(wctx, func() { s.Close() })
	logger().Debug("sample stream opened", "stream", s.id, "policy", cfg.Policy.String(), "depth", depth)
	return s, nil
}

// SampleStream is an ordered, cancellable pull stream of frames.
// Frames come out in production order, never reordered or duplicated;
// under DeliverLatest the sequence may have gaps where frames were
// dropped.
//
// Next is single-consumer; Close may be called from anywhere.
type SampleStream struct {
	id     string
	pipe   *Pipeline
	policy DeliverPolicy
	depth  int

	mu      sync.Mutex
	pending []*Frame
	head    int
	seq     uint64
	failure *BusError
	eos     bool
	closed  bool
	prev    *Frame
	stats   StreamStats

	notify    chan struct{}
	cancel    context.CancelFunc
	watchDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// ID returns the stream's trace identifier, as used in log records.
func (s *SampleStream) ID() string { return s.id }

// Stats returns stream counters.
func (s *SampleStream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// deliver runs on an engine thread: wrap the sample, enqueue it under
// the policy, signal the consumer. Constant-time, never blocks.
func (s *SampleStream) deliver(smp EngineSample) {
	buf := wrapEngineBuffer(s.pipe.eng, smp.Buffer, smp.Size, smp.PTS, smp.DTS, smp.Duration)
	f := &Frame{Buffer: buf}
	if smp.Caps != "" {
		if c, err := ParseCaps(smp.Caps); err == nil {
			f.Caps = c
			f.Width, _ = c.Int("width")
			f.Height, _ = c.Int("height")
			if format, ok := c.Get("format"); ok && c.Name() == "video/x-raw" {
				f.Format = ParsePixelFormat(format)
			}
		} else {
			logger().Warn("unparseable sample caps", "stream", s.id, "caps", smp.Caps)
		}
	}

	var dropped *Frame
	s.mu.Lock()
	if s.closed || s.failure != nil || s.eos {
		s.mu.Unlock()
		buf.Release()
		return
	}
	s.seq++
	f.Seq = s.seq
	s.stats.Received++
	if s.policy == DeliverLatest && s.queued() >= s.depth {
		dropped = s.popLocked()
		s.stats.Dropped++
	}
	s.pending = append(s.pending, f)
	s.mu.Unlock()

	if dropped != nil {
		dropped.Release()
		logger().Debug("frame dropped", "stream", s.id, "seq", dropped.Seq)
	}
	s.wake()
}

// Next returns the next frame. The frame handed out by the previous
// Next call is reclaimed first; Clone frames that must outlive it.
//
// Next returns io.EOF after a clean end of stream, a *BusError after
// an engine error, ErrStreamClosed after Close, and the context's
// error if ctx ends while waiting.
func (s *SampleStream) Next(ctx context.Context) (*Frame, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrStreamClosed
		}
		if s.prev != nil {
			s.prev.Release()
			s.prev = nil
		}
		if s.queued() > 0 {
			f := s.popLocked()
			s.prev = f
			s.stats.Delivered++
			s.mu.Unlock()
			return f, nil
		}
		if s.failure != nil {
			err := s.failure
			s.mu.Unlock()
			return nil, err
		}
		if s.eos {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close tears the stream down: pending and handed-out frames are
// released and the pipeline is driven to StateNull. Idempotent;
// returns the state change error, if any.
func (s *SampleStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.prev != nil {
			s.prev.Release()
			s.prev = nil
		}
		drained := s.drainLocked()
		s.mu.Unlock()

		for _, f := range drained {
			f.Release()
		}
		s.cancel()
		<-s.watchDone
		s.wake()
		s.closeErr = s.pipe.eng.SetState(s.pipe.handle, StateNull)
		logger().Debug("sample stream closed", "stream", s.id, "released", len(drained))
	})
	return s.closeErr
}

func (s *SampleStream) watchBus(ctx context.Context, mask MessageKind, onMessage func(*Message)) {
	defer close(s.watchDone)
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := s.pipe.eng.PollMessage(s.pipe.handle, mask, busPollInterval)
		if err != nil {
			s.fail(&BusError{Message: "bus poll failed: " + err.Error()})
			return
		}
		if msg == nil {
			continue
		}
		switch msg.Kind {
		case MessageError:
			s.fail(msg.Err())
			return
		case MessageEOS:
			s.finish()
			return
		default:
			if onMessage != nil {
				onMessage(msg)
			}
		}
	}
}

// fail marks the stream failed and discards everything undelivered;
// frames already pulled stay valid.
func (s *SampleStream) fail(err *BusError) {
	s.mu.Lock()
	if s.closed || s.failure != nil {
		s.mu.Unlock()
		return
	}
	s.failure = err
	drained := s.drainLocked()
	s.mu.Unlock()

	for _, f := range drained {
		f.Release()
	}
	s.wake()
	logger().Warn("sample stream failed", "stream", s.id, "error", err.Message, "source", err.Source)
}

// finish marks a clean end of stream; pending frames remain deliverable.
func (s *SampleStream) finish() {
	s.mu.Lock()
	s.eos = true
	s.mu.Unlock()
	s.wake()
	logger().Debug("sample stream finished", "stream", s.id)
}

func (s *SampleStream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// queued, popLocked and drainLocked manage the pending window; the
// caller holds s.mu.

func (s *SampleStream) queued() int {
	return len(s.pending) - s.head
}

func (s *SampleStream) popLocked() *Frame {
	f := s.pending[s.head]
	s.pending[s.head] = nil
	s.head++
	if s.head == len(s.pending) {
		s.pending = s.pending[:0]
		s.head = 0
	}
	return f
}

func (s *SampleStream) drainLocked() []*Frame {
	out := make([]*Frame, 0, s.queued())
	for s.queued() > 0 {
		out = append(out, s.popLocked())
	}
	s.pending = nil
	s.head = 0
	return out
}
