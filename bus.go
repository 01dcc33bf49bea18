package gstkit

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// MessageKind classifies bus messages. Kinds are bit flags so they
// compose into poll masks: MessageError | MessageEOS.
type MessageKind uint32

const (
	MessageEOS             MessageKind = 1 << iota // End of stream
	MessageError                                   // Fatal pipeline error
	MessageWarning                                 // Non-fatal problem
	MessageInfo                                    // Informational notice
	MessageStateChanged                            // Element changed state
	MessageBuffering                               // Buffering progress
	MessageTag                                     // Metadata found in the stream
	MessageQOS                                     // Quality-of-service drop notice
	MessageElement                                 // Element-specific message
	MessageStreamStart                             // First data flowing
	MessageClockLost                               // Pipeline clock became unusable
	MessageNewClock                                // Pipeline selected a clock
	MessageLatency                                 // Latency needs reconfiguring
	MessageDurationChanged                         // Stream duration changed
	MessageProgress                                // Async operation progress
)

// MessageAny matches every message kind.
const MessageAny = MessageKind(^uint32(0))

// messageTerminal are the kinds that end a stream and are always
// watched regardless of the configured mask.
const messageTerminal = MessageEOS | MessageError

func (k MessageKind) String() string {
	switch k {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageInfo:
		return "info"
	case MessageStateChanged:
		return "state-changed"
	case MessageBuffering:
		return "buffering"
	case MessageTag:
		return "tag"
	case MessageQOS:
		return "qos"
	case MessageElement:
		return "element"
	case MessageStreamStart:
		return "stream-start"
	case MessageClockLost:
		return "clock-lost"
	case MessageNewClock:
		return "new-clock"
	case MessageLatency:
		return "latency"
	case MessageDurationChanged:
		return "duration-changed"
	case MessageProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Has reports whether mask k includes kind.
func (k MessageKind) Has(kind MessageKind) bool {
	return k&kind != 0
}

// Message is one bus message. Kind selects which of the remaining
// fields carry meaning: Text/Debug for error, warning and info
// messages, OldState/NewState for state changes, Percent for
// buffering progress.
type Message struct {
	Kind   MessageKind
	Source string // Name of the element that posted the message

	Text     string // Human-readable text
	Debug    string // Engine debug details, may be empty
	OldState State  // State before a state change
	NewState State  // State after a state change
	Percent  int    // Buffering progress, 0-100
}

// Err converts an error message to a *BusError. Returns nil for any
// other kind.
func (m *Message) Err() *BusError {
	if m == nil || m.Kind != MessageError {
		return nil
	}
	return &BusError{Source: m.Source, Message: m.Text, Debug: m.Debug}
}

// BusError is a fatal engine error reported on the bus. It terminates
// the streams of the pipeline that posted it.
type BusError struct {
	Source  string // Element that reported the error
	Message string // Error text
	Debug   string // Debug details, may be empty
}

func (e *BusError) Error() string {
	s := "pipeline error"
	if e.Source != "" {
		s += " from " + e.Source
	}
	s += ": " + e.Message
	if e.Debug != "" {
		s += " (" + e.Debug + ")"
	}
	return s
}

// ErrWatchClaimed is returned when a bus already has an active watch.
var ErrWatchClaimed = errors.New("bus watch already claimed")

// busPollInterval bounds how long a single engine poll may block, so
// watch goroutines notice cancellation promptly.
const busPollInterval = 50 * time.Millisecond

// Bus is the ordered message feed of a launched pipeline.
type Bus struct {
	eng     Engine
	pipe    PipelineHandle
	claimed atomic.Bool
}

// Poll pops the next message matching mask, waiting up to timeout.
// Kinds outside mask are discarded by the engine without surfacing.
// Returns (nil, nil) when the timeout expires with no match.
func (b *Bus) Poll(mask MessageKind, timeout time.Duration) (*Message, error) {
	return b.eng.PollMessage(b.pipe, mask, timeout)
}

// Watch converts the bus into a pull stream of messages matching mask.
// Terminal kinds (error, end-of-stream) are always included; after one
// is delivered the stream ends. An engine poll failure also ends the
// stream, surfaced as a terminal error message.
//
// A bus supports one watch for the pipeline's lifetime; further calls
// return ErrWatchClaimed. Pipeline.Stream claims the bus for its own
// watcher, so Watch on a streaming pipeline returns ErrWatchClaimed
// as well.
func (b *Bus) Watch(ctx context.Context, mask MessageKind) (*MessageStream, error) {
	if b.claimed.Swap(true) {
		return nil, ErrWatchClaimed
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &MessageStream{
		bus:    b,
		mask:   mask | messageTerminal,
		cancel: cancel,
		msgs:   make(chan *Message, 16),
		done:   make(chan struct{}),
	}
	go s.watch(ctx)
	return s, nil
}

// MessageStream is an ordered, cancellable sequence of bus messages.
// Not safe for concurrent Next calls.
type MessageStream struct {
	bus    *Bus
	mask   MessageKind
	cancel context.CancelFunc
	msgs   chan *Message
	done   chan struct{}
}

func (s *MessageStream) watch(ctx context.Context) {
	defer close(s.done)
	defer close(s.msgs)
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := s.bus.Poll(s.mask, busPollInterval)
		if err != nil {
			logger().Warn("bus poll failed", "error", err)
			msg = &Message{Kind: MessageError, Text: "bus poll failed: " + err.Error()}
		}
		if msg == nil {
			continue
		}
		select {
		case s.msgs <- msg:
		case <-ctx.Done():
			return
		}
		if msg.Kind&messageTerminal != 0 {
			return
		}
	}
}

// Next returns the next message in bus order. It returns io.EOF after
// the terminal message has been delivered, and the context's error if
// ctx ends first.
func (s *MessageStream) Next(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.msgs:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the watch. Messages not yet pulled are discarded.
func (s *MessageStream) Close() {
	s.cancel()
	<-s.done
}
