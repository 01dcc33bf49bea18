package gstkit

// The Engine interface is the boundary to the native media engine.
// Everything above it (buffers, the typed builder, streams) is
// engine-agnostic; the production binding lives in engine_purego.go
// and test doubles implement the same interface.

import "time"

// Handles are opaque engine tokens. They carry no Go-side meaning and
// must only be passed back to the engine that issued them.
type (
	PipelineHandle uintptr
	BufferHandle   uintptr
	ElementHandle  uintptr
	DeviceHandle   uintptr
)

// State is a pipeline lifecycle state.
type State int

const (
	StateNull    State = iota // Resources released, initial and final state
	StateReady                // Resources acquired, not processing
	StatePaused               // Prerolled, clock stopped
	StatePlaying              // Running
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MapMode selects the access a buffer view is mapped with.
type MapMode int

const (
	MapRead  MapMode = 1 << iota // Read access
	MapWrite                     // Write access
)

// MapReadWrite maps for both read and write access.
const MapReadWrite = MapRead | MapWrite

// SeekFlags adjust how the engine executes a seek.
type SeekFlags int

const (
	SeekFlush    SeekFlags = 1 << iota // Flush in-flight data before seeking
	SeekKeyUnit                        // Snap to the nearest keyframe
	SeekAccurate                       // Seek to the exact position, may be slow
)

// EngineSample is one delivery from an engine sample handler: an owned
// buffer handle plus the caps and timing it arrived with. The receiver
// takes ownership of the buffer.
type EngineSample struct {
	Buffer   BufferHandle
	Size     int    // Payload size in bytes
	Caps     string // Serialized negotiated caps
	PTS      ClockTime
	DTS      ClockTime
	Duration ClockTime
}

// SampleHandler receives samples on an engine thread. It must not
// block; hand the sample off and return.
type SampleHandler func(s EngineSample)

// Engine abstracts the native media engine. Pipeline execution, format
// negotiation, device I/O and protocol handling all happen behind it;
// this package only composes descriptions, moves buffers across, and
// adapts the engine's push callbacks to pull streams.
//
// The engine's bus is addressed through the owning pipeline handle:
// PollMessage(p, ...) polls the bus of p.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// Version reports the engine's runtime version string.
	Version() string

	// Parse builds a pipeline from a launch description. A rejected
	// description returns a *ParseError.
	Parse(description string) (PipelineHandle, error)

	// ReleasePipeline frees a pipeline handle and everything it owns.
	ReleasePipeline(p PipelineHandle)

	// SetState requests a state transition and waits for it to
	// complete. A refused transition returns a *StateChangeError.
	SetState(p PipelineHandle, s State) error

	// State reports the pipeline's current state.
	State(p PipelineHandle) (State, error)

	// PollMessage pops the next bus message matching mask, waiting up
	// to timeout. Messages outside mask are discarded engine-side
	// without surfacing. Returns (nil, nil) when the timeout expires
	// with no match.
	PollMessage(p PipelineHandle, mask MessageKind, timeout time.Duration) (*Message, error)

	// InstallSampleHandler registers fn for samples reaching the named
	// sink element of p. fn runs on an engine thread.
	InstallSampleHandler(p PipelineHandle, sinkName string, fn SampleHandler) error

	// AllocateBuffer requests a buffer of the given size from the
	// engine's allocator.
	AllocateBuffer(size int) (BufferHandle, error)

	// MapBuffer exposes the buffer's memory for the given access mode.
	// The returned slice is valid until UnmapBuffer.
	MapBuffer(b BufferHandle, mode MapMode) ([]byte, error)

	// UnmapBuffer ends the view established by MapBuffer.
	UnmapBuffer(b BufferHandle)

	// FreeBuffer returns the buffer to the engine.
	FreeBuffer(b BufferHandle)

	// CreateElement instantiates an element from a factory name.
	// A missing factory reports ok=false, not an error.
	CreateElement(factory, name string) (el ElementHandle, ok bool)

	// LinkElements links src to dst.
	LinkElements(src, dst ElementHandle) error

	// ElementByName finds an element of a parsed pipeline by name.
	ElementByName(p PipelineHandle, name string) (el ElementHandle, ok bool)

	// SetProperty sets an element property. Supported value types are
	// string, bool, int and float64.
	SetProperty(el ElementHandle, name string, value any) error

	// Seek repositions the pipeline to the given time.
	Seek(p PipelineHandle, to ClockTime, flags SeekFlags) error

	// Position reports the current playback position, ok=false when
	// the pipeline cannot answer yet.
	Position(p PipelineHandle) (ClockTime, bool)

	// Duration reports the total duration, ok=false when unknown.
	Duration(p PipelineHandle) (ClockTime, bool)

	// Devices enumerates devices matching the class mask. An empty
	// result is normal, not an error.
	Devices(classes DeviceClass) ([]DeviceInfo, error)

	// CreateDeviceElement instantiates a source element bound to the
	// device. A device that cannot produce one reports ok=false.
	CreateDeviceElement(d DeviceHandle, name string) (el ElementHandle, ok bool)
}

// ParseError reports a launch description the engine rejected.
type ParseError struct {
	Description string // The rejected launch text
	Message     string // The engine's reason
}

func (e *ParseError) Error() string {
	return "parse failed: " + e.Message
}

// StateChangeError reports a state transition the engine refused.
type StateChangeError struct {
	Requested State // State that was asked for
	Actual    State // State the pipeline is actually in
}

func (e *StateChangeError) Error() string {
	return "state change to " + e.Requested.String() + " failed (pipeline is " + e.Actual.String() + ")"
}
