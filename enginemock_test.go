package gstkit

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeEngine is an in-memory Engine for tests. Buffers are plain byte
// slices, pipelines carry scripted bus queues, and installed sample
// handlers are invoked directly by tests to emulate the engine's
// streaming thread.
type fakeEngine struct {
	mu sync.Mutex

	nextHandle uintptr
	pipelines  map[PipelineHandle]*fakePipeline
	buffers    map[BufferHandle]*fakeBuffer
	named      map[string]ElementHandle

	allocs int
	frees  int

	// Scripted failures
	parseFail   string
	allocFail   bool
	mapFail     bool
	installFail bool
	linkFail    bool
	seekFail    bool
	pollFail    bool
	propFail    bool
	stateFail   map[State]bool
	noFactories bool
	noDevElem   bool

	devices []DeviceInfo
	devErr  error

	position ClockTime
	havePos  bool
	duration ClockTime
	haveDur  bool

	props []propCall
	seeks []seekCall
}

type fakePipeline struct {
	state     State
	states    []State
	msgs      []*Message
	discarded int
	handler   SampleHandler
	sink      string
	released  bool
}

type fakeBuffer struct {
	data   []byte
	mapped bool
	freed  bool
}

type propCall struct {
	el    ElementHandle
	name  string
	value any
}

type seekCall struct {
	to    ClockTime
	flags SeekFlags
}

var _ Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		pipelines: make(map[PipelineHandle]*fakePipeline),
		buffers:   make(map[BufferHandle]*fakeBuffer),
		named:     make(map[string]ElementHandle),
		stateFail: make(map[State]bool),
	}
}

func (e *fakeEngine) Version() string { return "fake-engine 1.0" }

func (e *fakeEngine) Parse(description string) (PipelineHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.parseFail != "" {
		return 0, &ParseError{Description: description, Message: e.parseFail}
	}
	e.nextHandle++
	h := PipelineHandle(e.nextHandle)
	e.pipelines[h] = &fakePipeline{state: StateNull}
	return h, nil
}

func (e *fakeEngine) ReleasePipeline(p PipelineHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pl := e.pipelines[p]; pl != nil {
		pl.released = true
		pl.handler = nil
	}
}

func (e *fakeEngine) SetState(p PipelineHandle, s State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pl := e.pipelines[p]
	if pl == nil {
		return fmt.Errorf("unknown pipeline %d", p)
	}
	if e.stateFail[s] {
		return &StateChangeError{Requested: s, Actual: pl.state}
	}
	pl.state = s
	pl.states = append(pl.states, s)
	return nil
}

func (e *fakeEngine) State(p PipelineHandle) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pl := e.pipelines[p]
	if pl == nil {
		return StateNull, fmt.Errorf("unknown pipeline %d", p)
	}
	return pl.state, nil
}

func (e *fakeEngine) PollMessage(p PipelineHandle, mask MessageKind, timeout time.Duration) (*Message, error) {
	e.mu.Lock()
	if e.pollFail {
		e.mu.Unlock()
		return nil, errors.New("bus unavailable")
	}
	if pl := e.pipelines[p]; pl != nil {
		for len(pl.msgs) > 0 {
			m := pl.msgs[0]
			pl.msgs = pl.msgs[1:]
			if m.Kind&mask != 0 {
				e.mu.Unlock()
				return m, nil
			}
			pl.discarded++
		}
	}
	e.mu.Unlock()
	if timeout > time.Millisecond {
		timeout = time.Millisecond
	}
	time.Sleep(timeout)
	return nil, nil
}

func (e *fakeEngine) InstallSampleHandler(p PipelineHandle, sinkName string, fn SampleHandler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.installFail {
		return errors.New("appsink callback rejected")
	}
	pl := e.pipelines[p]
	if pl == nil {
		return fmt.Errorf("unknown pipeline %d", p)
	}
	pl.handler = fn
	pl.sink = sinkName
	return nil
}

func (e *fakeEngine) AllocateBuffer(size int) (BufferHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.allocFail {
		return 0, errors.New("allocation refused")
	}
	return e.newBufferLocked(make([]byte, size)), nil
}

func (e *fakeEngine) newBufferLocked(data []byte) BufferHandle {
	e.nextHandle++
	h := BufferHandle(e.nextHandle)
	e.buffers[h] = &fakeBuffer{data: data}
	e.allocs++
	return h
}

func (e *fakeEngine) MapBuffer(b BufferHandle, mode MapMode) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.buffers[b]
	if buf == nil || buf.freed {
		return nil, errors.New("map of invalid buffer")
	}
	if e.mapFail {
		return nil, errors.New("map refused")
	}
	if buf.mapped {
		return nil, errors.New("buffer already mapped")
	}
	buf.mapped = true
	return buf.data, nil
}

func (e *fakeEngine) UnmapBuffer(b BufferHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if buf := e.buffers[b]; buf != nil {
		buf.mapped = false
	}
}

func (e *fakeEngine) FreeBuffer(b BufferHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if buf := e.buffers[b]; buf != nil && !buf.freed {
		buf.freed = true
		e.frees++
	}
}

func (e *fakeEngine) CreateElement(factory, name string) (ElementHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.noFactories {
		return 0, false
	}
	e.nextHandle++
	return ElementHandle(e.nextHandle), true
}

func (e *fakeEngine) LinkElements(src, dst ElementHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.linkFail {
		return errors.New("link refused")
	}
	return nil
}

func (e *fakeEngine) ElementByName(p PipelineHandle, name string) (ElementHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.named[name]
	return h, ok
}

func (e *fakeEngine) SetProperty(el ElementHandle, name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.propFail {
		return errors.New("property rejected")
	}
	e.props = append(e.props, propCall{el: el, name: name, value: value})
	return nil
}

func (e *fakeEngine) Seek(p PipelineHandle, to ClockTime, flags SeekFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seekFail {
		return errors.New("seek refused")
	}
	e.seeks = append(e.seeks, seekCall{to: to, flags: flags})
	return nil
}

func (e *fakeEngine) Position(p PipelineHandle) (ClockTime, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position, e.havePos
}

func (e *fakeEngine) Duration(p PipelineHandle) (ClockTime, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration, e.haveDur
}

func (e *fakeEngine) Devices(classes DeviceClass) ([]DeviceInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.devErr != nil {
		return nil, e.devErr
	}
	var out []DeviceInfo
	for _, d := range e.devices {
		if d.Class&classes != 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *fakeEngine) CreateDeviceElement(d DeviceHandle, name string) (ElementHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.noDevElem {
		return 0, false
	}
	e.nextHandle++
	return ElementHandle(e.nextHandle), true
}

// Test-side controls

// addNamedElement registers an element ElementByName will find.
func (e *fakeEngine) addNamedElement(name string) ElementHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextHandle++
	h := ElementHandle(e.nextHandle)
	e.named[name] = h
	return h
}

// queueMessage appends a message to the pipeline's bus.
func (e *fakeEngine) queueMessage(p PipelineHandle, m *Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pl := e.pipelines[p]; pl != nil {
		pl.msgs = append(pl.msgs, m)
	}
}

// pushSample allocates an engine buffer holding payload and feeds it
// through the installed sample handler, the way the engine's streaming
// thread would.
func (e *fakeEngine) pushSample(t *testing.T, p PipelineHandle, caps string, payload []byte, pts ClockTime) {
	t.Helper()
	e.mu.Lock()
	pl := e.pipelines[p]
	if pl == nil || pl.handler == nil {
		e.mu.Unlock()
		t.Fatalf("no sample handler installed on pipeline %d", p)
	}
	fn := pl.handler
	data := make([]byte, len(payload))
	copy(data, payload)
	h := e.newBufferLocked(data)
	e.mu.Unlock()

	fn(EngineSample{
		Buffer:   h,
		Size:     len(payload),
		Caps:     caps,
		PTS:      pts,
		DTS:      ClockTimeNone,
		Duration: ClockTimeNone,
	})
}

// liveBuffers reports how many engine buffers are still allocated.
func (e *fakeEngine) liveBuffers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocs - e.frees
}

// bufferData returns a copy of a buffer's current payload.
func (e *fakeEngine) bufferData(t *testing.T, b BufferHandle) []byte {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.buffers[b]
	if buf == nil {
		t.Fatalf("unknown buffer %d", b)
	}
	out := make([]byte, len(buf.data))
	copy(out, buf.data)
	return out
}

func (e *fakeEngine) stateOf(t *testing.T, p PipelineHandle) State {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	pl := e.pipelines[p]
	if pl == nil {
		t.Fatalf("unknown pipeline %d", p)
	}
	return pl.state
}

func (e *fakeEngine) pipelineReleased(t *testing.T, p PipelineHandle) bool {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	pl := e.pipelines[p]
	if pl == nil {
		t.Fatalf("unknown pipeline %d", p)
	}
	return pl.released
}

func (e *fakeEngine) discardedMessages(t *testing.T, p PipelineHandle) int {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	pl := e.pipelines[p]
	if pl == nil {
		t.Fatalf("unknown pipeline %d", p)
	}
	return pl.discarded
}
