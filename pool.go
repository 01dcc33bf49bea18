package gstkit

import "sync"

// BufferPool recycles fixed-size engine buffers to avoid per-frame
// allocator round-trips. Buffers whose payload is still shared when
// returned are released instead of re-pooled, so pooled payloads are
// always exclusively owned.
//
// The pool holds native allocations, so Close it when done.
type BufferPool struct {
	eng  Engine
	size int

	mu     sync.Mutex
	free   []*Buffer
	closed bool

	stats   BufferPoolStats
	statsMu sync.Mutex
}

// BufferPoolStats provides pool counters.
type BufferPoolStats struct {
	Allocated uint64 // Buffers newly allocated from the engine
	Reused    uint64 // Buffers served from the free list
	Discarded uint64 // Returned buffers released instead of pooled
}

// NewBufferPool creates a pool of buffers of the given payload size.
func NewBufferPool(eng Engine, size int) *BufferPool {
	return &BufferPool{eng: eng, size: size}
}

// Size returns the payload size of the pool's buffers.
func (p *BufferPool) Size() int { return p.size }

// Get returns a buffer with unset timestamps, reusing a pooled one
// when available.
func (p *BufferPool) Get() (*Buffer, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 && !p.closed {
		b := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()

		b.SetPTS(ClockTimeNone)
		b.SetDTS(ClockTimeNone)
		b.SetDuration(ClockTimeNone)
		p.countReuse()
		return b, nil
	}
	p.mu.Unlock()

	b, err := Allocate(p.eng, p.size)
	if err != nil {
		return nil, err
	}
	p.countAlloc()
	return b, nil
}

// Put returns a buffer to the pool. Buffers of the wrong size, shared
// buffers and buffers returned after Close are released instead.
func (p *BufferPool) Put(b *Buffer) {
	if b == nil {
		return
	}
	if b.Len() != p.size || b.Shared() {
		b.Release()
		p.countDiscard()
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		b.Release()
		p.countDiscard()
		return
	}
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Close releases every pooled buffer. Buffers already handed out stay
// valid; returning them after Close releases them.
func (p *BufferPool) Close() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.closed = true
	p.mu.Unlock()

	for _, b := range free {
		b.Release()
	}
}

// Stats returns pool counters.
func (p *BufferPool) Stats() BufferPoolStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *BufferPool) countAlloc() {
	p.statsMu.Lock()
	p.stats.Allocated++
	p.statsMu.Unlock()
}

func (p *BufferPool) countReuse() {
	p.statsMu.Lock()
	p.stats.Reused++
	p.statsMu.Unlock()
}

func (p *BufferPool) countDiscard() {
	p.statsMu.Lock()
	p.stats.Discarded++
	p.statsMu.Unlock()
}
