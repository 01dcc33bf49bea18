// Zero-copy buffer model over the engine's allocator. Buffers share
// refcounted native storage; mutation through a shared handle
// duplicates the payload first, so owners never observe each other's
// writes.
package gstkit

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Common buffer errors.
var (
	ErrAllocationFailed = errors.New("buffer allocation failed")
	ErrMapFailed        = errors.New("buffer map failed")
	ErrBufferReleased   = errors.New("buffer already released")
)

// memory is one engine allocation shared by any number of Buffer
// handles. The last release frees it engine-side.
type memory struct {
	eng    Engine
	handle BufferHandle
	size   int
	refs   atomic.Int32
}

func (m *memory) unref() {
	if m.refs.Add(-1) == 0 {
		m.eng.FreeBuffer(m.handle)
	}
}

// Buffer is a shared-ownership handle to one engine allocation, plus
// timing metadata. Clone is cheap and shares the payload; the first
// mutation through a handle whose payload is still shared duplicates
// it (copy-on-write). Metadata is per-handle and copies with Clone.
//
// A Buffer is not safe for concurrent use; independent clones are.
type Buffer struct {
	mem           *memory
	pts, dts, dur ClockTime
}

func newBuffer(mem *memory) *Buffer {
	return &Buffer{mem: mem, pts: ClockTimeNone, dts: ClockTimeNone, dur: ClockTimeNone}
}

// Allocate requests a buffer of the given size from the engine's
// allocator. Zero-length buffers are legal.
func Allocate(eng Engine, size int) (*Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrAllocationFailed, size)
	}
	h, err := eng.AllocateBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	mem := &memory{eng: eng, handle: h, size: size}
	mem.refs.Store(1)
	return newBuffer(mem), nil
}

// WrapBytes copies data into a newly allocated buffer.
func WrapBytes(eng Engine, data []byte) (*Buffer, error) {
	b, err := Allocate(eng, len(data))
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if _, err := b.Fill(0, data); err != nil {
			b.Release()
			return nil, err
		}
	}
	return b, nil
}

// wrapEngineBuffer adopts a buffer handle the engine has handed over,
// for example in a sample delivery. The caller's ownership transfers to
// the returned Buffer.
func wrapEngineBuffer(eng Engine, h BufferHandle, size int, pts, dts, dur ClockTime) *Buffer {
	mem := &memory{eng: eng, handle: h, size: size}
	mem.refs.Store(1)
	b := newBuffer(mem)
	b.pts, b.dts, b.dur = pts, dts, dur
	return b
}

// Len returns the payload size in bytes.
func (b *Buffer) Len() int {
	if b.mem == nil {
		return 0
	}
	return b.mem.size
}

// PTS returns the presentation timestamp, ClockTimeNone if unset.
func (b *Buffer) PTS() ClockTime { return b.pts }

// DTS returns the decode timestamp, ClockTimeNone if unset.
func (b *Buffer) DTS() ClockTime { return b.dts }

// Duration returns the payload duration, ClockTimeNone if unset.
func (b *Buffer) Duration() ClockTime { return b.dur }

// SetPTS sets the presentation timestamp on this handle.
func (b *Buffer) SetPTS(t ClockTime) { b.pts = t }

// SetDTS sets the decode timestamp on this handle.
func (b *Buffer) SetDTS(t ClockTime) { b.dts = t }

// SetDuration sets the payload duration on this handle.
func (b *Buffer) SetDuration(t ClockTime) { b.dur = t }

// Shared reports whether other handles still reference the payload.
func (b *Buffer) Shared() bool {
	return b.mem != nil && b.mem.refs.Load() > 1
}

// Clone returns a new handle sharing the payload. The payload is only
// duplicated if one of the handles later mutates it.
func (b *Buffer) Clone() *Buffer {
	if b.mem == nil {
		return &Buffer{pts: b.pts, dts: b.dts, dur: b.dur}
	}
	b.mem.refs.Add(1)
	return &Buffer{mem: b.mem, pts: b.pts, dts: b.dts, dur: b.dur}
}

// Release gives up this handle's ownership. The engine allocation is
// freed when the last handle releases. The buffer is unusable
// afterwards; releasing again is a no-op.
func (b *Buffer) Release() {
	if b.mem == nil {
		return
	}
	mem := b.mem
	b.mem = nil
	mem.unref()
}

// Map exposes the payload read-only to fn. The slice is only valid
// inside fn; it must not be retained or written.
func (b *Buffer) Map(fn func(data []byte) error) error {
	if b.mem == nil {
		return ErrBufferReleased
	}
	data, err := b.mem.eng.MapBuffer(b.mem.handle, MapRead)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	defer b.mem.eng.UnmapBuffer(b.mem.handle)
	return fn(data)
}

// MapWritable exposes the payload read-write to fn, duplicating it
// first if other handles still share it. The slice is only valid
// inside fn.
func (b *Buffer) MapWritable(fn func(data []byte) error) error {
	if err := b.ensureWritable(); err != nil {
		return err
	}
	data, err := b.mem.eng.MapBuffer(b.mem.handle, MapReadWrite)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	defer b.mem.eng.UnmapBuffer(b.mem.handle)
	return fn(data)
}

// Fill copies src into the payload at offset and returns the number of
// bytes written, truncating at the payload's end. Like any mutation it
// duplicates a shared payload first.
func (b *Buffer) Fill(offset int, src []byte) (int, error) {
	if b.mem == nil {
		return 0, ErrBufferReleased
	}
	if offset < 0 || offset > b.mem.size {
		return 0, fmt.Errorf("fill offset %d out of range [0, %d]", offset, b.mem.size)
	}
	if len(src) == 0 {
		return 0, nil
	}
	var n int
	err := b.MapWritable(func(data []byte) error {
		n = copy(data[offset:], src)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Bytes returns a copy of the payload. Use Map to read without
// copying.
func (b *Buffer) Bytes() ([]byte, error) {
	if b.mem == nil {
		return nil, ErrBufferReleased
	}
	out := make([]byte, b.mem.size)
	err := b.Map(func(data []byte) error {
		copy(out, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ensureWritable gives b sole ownership of its payload, duplicating it
// into a fresh engine allocation while other handles still share it.
func (b *Buffer) ensureWritable() error {
	if b.mem == nil {
		return ErrBufferReleased
	}
	if b.mem.refs.Load() == 1 {
		return nil
	}
	h, err := b.mem.eng.AllocateBuffer(b.mem.size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	fresh := &memory{eng: b.mem.eng, handle: h, size: b.mem.size}
	fresh.refs.Store(1)
	if b.mem.size > 0 {
		src, err := b.mem.eng.MapBuffer(b.mem.handle, MapRead)
		if err != nil {
			fresh.unref()
			return fmt.Errorf("%w: %v", ErrMapFailed, err)
		}
		dst, err := fresh.eng.MapBuffer(h, MapWrite)
		if err != nil {
			b.mem.eng.UnmapBuffer(b.mem.handle)
			fresh.unref()
			return fmt.Errorf("%w: %v", ErrMapFailed, err)
		}
		copy(dst, src)
		fresh.eng.UnmapBuffer(h)
		b.mem.eng.UnmapBuffer(b.mem.handle)
	}
	old := b.mem
	b.mem = fresh
	old.unref()
	return nil
}
