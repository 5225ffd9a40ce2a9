package myaudio

import (
	"sync"
	"sync/atomic"

	"github.com/arribada/audiocontroller/internal/errors"
)

// Int16Pool provides a thread-safe pool of window-sized int16 slices used for
// copy-on-dispatch snapshots. It falls back to allocation when empty, so Get
// never fails.
type Int16Pool struct {
	pool      sync.Pool
	size      int
	gets      atomic.Uint64
	news      atomic.Uint64
	discarded atomic.Uint64
}

// Int16PoolStats contains statistics about pool usage
type Int16PoolStats struct {
	Hits      uint64 // Number of successful buffer reuses (Gets - News)
	Misses    uint64 // Number of new allocations (News)
	Discarded uint64 // Number of buffers discarded due to size mismatch
}

// NewInt16Pool creates a new pool for int16 slices of the specified size.
func NewInt16Pool(size int) (*Int16Pool, error) {
	if size <= 0 {
		return nil, errors.Newf("invalid int16 pool size: %d", size).
			Component("myaudio").
			Category(errors.CategoryValidation).
			Context("operation", "create_int16_pool").
			Context("requested_size", size).
			Build()
	}

	p := &Int16Pool{size: size}
	p.pool = sync.Pool{
		New: func() any {
			p.news.Add(1)
			return make([]int16, size)
		},
	}
	return p, nil
}

// Get retrieves a slice from the pool
func (p *Int16Pool) Get() []int16 {
	p.gets.Add(1)
	return p.pool.Get().([]int16)
}

// Put returns a slice to the pool. Nil and wrongly sized slices are discarded.
func (p *Int16Pool) Put(buf []int16) {
	if len(buf) != p.size {
		p.discarded.Add(1)
		return
	}
	p.pool.Put(buf)
}

// GetStats returns current pool statistics
func (p *Int16Pool) GetStats() Int16PoolStats {
	gets := p.gets.Load()
	news := p.news.Load()
	return Int16PoolStats{
		Hits:      gets - news,
		Misses:    news,
		Discarded: p.discarded.Load(),
	}
}
