// Package mempool provides bounded byte-buffer accounting for transfer
// destination buffers. Two pools exist: a larger secondary pool that bulk
// transfers allocate from first, and a smaller primary reserve used as a
// fallback when the secondary pool is exhausted. The callback context never
// allocates from the primary pool directly; all transfer buffers come
// through an Allocator at transfer start, in main-loop reach.
package mempool

import (
	"errors"
	"sync"
)

// ErrExhausted is returned when a pool cannot cover a requested allocation.
var ErrExhausted = errors.New("mempool: pool exhausted")

// ErrBadSize is returned for zero-byte or over-budget single allocations.
var ErrBadSize = errors.New("mempool: invalid allocation size")

// Pool is a fixed byte budget with allocation accounting. It does not
// recycle buffers; it bounds how many bytes may be outstanding at once so a
// runaway transfer cannot starve the rest of the system.
type Pool struct {
	mu       sync.Mutex
	budget   int
	inUse    int
	allocs   uint64
	releases uint64
}

// NewPool creates a pool with the given byte budget.
func NewPool(budget int) *Pool {
	return &Pool{budget: budget}
}

// Get allocates n bytes, or fails with ErrExhausted/ErrBadSize leaving the
// accounting unchanged.
func (p *Pool) Get(n int) ([]byte, error) {
	if n <= 0 || n > p.budget {
		return nil, ErrBadSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse+n > p.budget {
		return nil, ErrExhausted
	}
	p.inUse += n
	p.allocs++
	return make([]byte, n), nil
}

// Put releases a buffer previously obtained from Get. Releasing nil is a
// no-op. Must be called exactly once per Get along every code path.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse -= len(buf)
	p.releases++
	if p.inUse < 0 {
		// Double release. Clamp rather than corrupt the budget.
		p.inUse = 0
	}
}

// InUse returns the number of bytes currently outstanding.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Allocated returns the total number of Get calls that succeeded.
func (p *Pool) Allocated() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocs
}

// Released returns the total number of Put calls.
func (p *Pool) Released() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

// Allocator prefers the secondary pool and falls back to the primary
// reserve. Buffers remember their source pool so release is unambiguous.
type Allocator struct {
	mu        sync.Mutex
	primary   *Pool
	secondary *Pool
	origin    map[*byte]*Pool
}

// NewAllocator creates an allocator over a primary reserve and a secondary
// bulk pool.
func NewAllocator(primary, secondary *Pool) *Allocator {
	return &Allocator{
		primary:   primary,
		secondary: secondary,
		origin:    make(map[*byte]*Pool),
	}
}

// Get allocates n bytes from the secondary pool, falling back to the
// primary reserve when the secondary pool is exhausted.
func (a *Allocator) Get(n int) ([]byte, error) {
	buf, err := a.secondary.Get(n)
	pool := a.secondary
	if err != nil {
		buf, err = a.primary.Get(n)
		pool = a.primary
	}
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.origin[&buf[0]] = pool
	a.mu.Unlock()
	return buf, nil
}

// Put releases a buffer back to whichever pool it came from. Unknown or nil
// buffers are ignored.
func (a *Allocator) Put(buf []byte) {
	if len(buf) == 0 {
		return
	}
	a.mu.Lock()
	pool, ok := a.origin[&buf[0]]
	if ok {
		delete(a.origin, &buf[0])
	}
	a.mu.Unlock()
	if ok {
		pool.Put(buf)
	}
}

// InUse returns outstanding bytes across both pools.
func (a *Allocator) InUse() int {
	return a.primary.InUse() + a.secondary.InUse()
}
