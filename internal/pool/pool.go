// Package pool provides typed sync.Pool wrappers for the buffers used when
// encoding images.
package pool

import (
	"bytes"
	"image/png"
	"sync"
	"sync/atomic"
)

// Pool is a typed object pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T) bool

	gets atomic.Int64
	news atomic.Int64
	puts atomic.Int64
}

// NewPool creates a pool. reset prepares an object for reuse and returns
// false when the object should be dropped instead.
func NewPool[T any](newFunc func() T, reset func(T) bool) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get returns a pooled or new object.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil && !p.reset(obj) {
		return
	}
	p.puts.Add(1)
	p.pool.Put(obj)
}

// Stats returns usage counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{Gets: p.gets.Load(), News: p.news.Load(), Puts: p.puts.Load()}
}

// Stats counts pool traffic.
type Stats struct {
	Gets int64 `json:"gets"`
	News int64 `json:"news"`
	Puts int64 `json:"puts"`
}

// HitRate is the share of Gets served without allocating.
func (s Stats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

const (
	imageBufferSize = 256 << 10
	// Buffers grown past this are released rather than kept alive.
	maxImageBufferSize = 16 << 20
)

// NewBufferPool returns a pool of buffers with initial capacity size that
// drops buffers grown beyond maxSize.
func NewBufferPool(size, maxSize int) *Pool[*bytes.Buffer] {
	return NewPool(
		func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, size)) },
		func(b *bytes.Buffer) bool {
			if b.Cap() > maxSize {
				return false
			}
			b.Reset()
			return true
		},
	)
}

// ImageBuffers holds the scratch buffers for encoded PNG bytes: base64
// responses and decoded remote artifacts.
var ImageBuffers = NewBufferPool(imageBufferSize, maxImageBufferSize)

// PNGEncoders is shared by every png.Encoder in the process.
var PNGEncoders = NewPNGBuffers()

// PNGBuffers implements png.EncoderBufferPool so that repeated encodes of
// same-sized images reuse the encoder scratch space.
type PNGBuffers struct {
	p *Pool[*png.EncoderBuffer]
}

// NewPNGBuffers creates an empty encoder buffer pool.
func NewPNGBuffers() *PNGBuffers {
	return &PNGBuffers{p: NewPool(func() *png.EncoderBuffer { return new(png.EncoderBuffer) }, nil)}
}

func (b *PNGBuffers) Get() *png.EncoderBuffer { return b.p.Get() }

func (b *PNGBuffers) Put(e *png.EncoderBuffer) { b.p.Put(e) }

// Stats returns usage counters.
func (b *PNGBuffers) Stats() Stats { return b.p.Stats() }
