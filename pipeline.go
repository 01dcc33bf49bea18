package gstkit

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Pipeline is a launched engine pipeline. It is created by
// Descriptor.Launch or ParseLaunch and must be closed to release the
// engine resources it holds.
//
// Pipeline is safe for concurrent use.
type Pipeline struct {
	eng      Engine
	handle   PipelineHandle
	bus      *Bus
	launch   string
	caps     Caps
	sinkName string

	streamMu sync.Mutex
	stream   *SampleStream

	closed atomic.Bool
}

// ParseLaunch builds a pipeline from free-form launch text. Unlike the
// typed builder, nothing is checked Go-side; a description the engine
// rejects returns a *ParseError.
func ParseLaunch(eng Engine, description string) (*Pipeline, error) {
	return launchPipeline(eng, description, Caps{}, "")
}

func launchPipeline(eng Engine, description string, caps Caps, sinkName string) (*Pipeline, error) {
	h, err := eng.Parse(description)
	if err != nil {
		return nil, fmt.Errorf("failed to launch pipeline: %w", err)
	}
	logger().Debug("pipeline launched", "description", description)
	return &Pipeline{
		eng:      eng,
		handle:   h,
		bus:      &Bus{eng: eng, pipe: h},
		launch:   description,
		caps:     caps,
		sinkName: sinkName,
	}, nil
}

// String returns the launch description the pipeline was built from.
func (p *Pipeline) String() string { return p.launch }

// Caps returns the terminal shape caps recorded by the builder, empty
// for pipelines built with ParseLaunch.
func (p *Pipeline) Caps() Caps { return p.caps }

// Bus returns the pipeline's message bus.
func (p *Pipeline) Bus() *Bus { return p.bus }

// SetState requests a state transition and waits for it. A refused
// transition returns a *StateChangeError.
func (p *Pipeline) SetState(s State) error {
	if err := p.eng.SetState(p.handle, s); err != nil {
		return err
	}
	logger().Debug("pipeline state changed", "state", s.String())
	return nil
}

// Play transitions the pipeline to StatePlaying.
func (p *Pipeline) Play() error { return p.SetState(StatePlaying) }

// Pause transitions the pipeline to StatePaused.
func (p *Pipeline) Pause() error { return p.SetState(StatePaused) }

// Stop transitions the pipeline to StateNull, releasing its data flow
// without releasing the handle.
func (p *Pipeline) Stop() error { return p.SetState(StateNull) }

// State reports the pipeline's current state.
func (p *Pipeline) State() (State, error) {
	return p.eng.State(p.handle)
}

// Seek repositions playback to the given time. Zero flags default to
// a flushing keyframe seek.
func (p *Pipeline) Seek(to ClockTime, flags SeekFlags) error {
	if flags == 0 {
		flags = SeekFlush | SeekKeyUnit
	}
	if err := p.eng.Seek(p.handle, to, flags); err != nil {
		return fmt.Errorf("failed to seek to %s: %w", to, err)
	}
	return nil
}

// Position reports the current playback position, ok=false when the
// pipeline cannot answer yet.
func (p *Pipeline) Position() (ClockTime, bool) {
	return p.eng.Position(p.handle)
}

// Duration reports the stream duration, ok=false when unknown.
func (p *Pipeline) Duration() (ClockTime, bool) {
	return p.eng.Duration(p.handle)
}

// SetElementProperty sets a property on a named element of the running
// pipeline, for example to retune an encoder.
func (p *Pipeline) SetElementProperty(element, property string, value any) error {
	el, ok := p.eng.ElementByName(p.handle, element)
	if !ok {
		return fmt.Errorf("no element named %q in pipeline", element)
	}
	if err := p.eng.SetProperty(el, property, value); err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", element, property, err)
	}
	return nil
}

// Close drives the pipeline to StateNull and releases the engine
// handle. An active sample stream is closed first. Close is
// idempotent.
func (p *Pipeline) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.streamMu.Lock()
	s := p.stream
	p.streamMu.Unlock()
	if s != nil {
		s.Close()
	}

	err := p.eng.SetState(p.handle, StateNull)
	p.eng.ReleasePipeline(p.handle)
	logger().Debug("pipeline closed")
	return err
}
