package core

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// bufferPool hands out reset *bytes.Buffer values for record encoding.
// Buffers that grew past maxRetained are dropped instead of pooled so one
// oversized record does not pin its memory forever.
type bufferPool struct {
	pool        *GenericPool[*bytes.Buffer]
	maxRetained int

	gets    atomic.Uint64
	dropped atomic.Uint64
}

// DefaultEncodeBufferSize is the initial capacity of pooled encode buffers.
const DefaultEncodeBufferSize = 4 * 1024

// maxRetainedBufferSize bounds the capacity of buffers returned to the pool.
const maxRetainedBufferSize = 1024 * 1024

var BufferPool = NewBufferPool(DefaultEncodeBufferSize)

// NewBufferPool creates a new buffer pool whose buffers start with the given capacity.
func NewBufferPool(initialCapacity int) *bufferPool {
	if initialCapacity < 0 {
		initialCapacity = 0
	}
	return &bufferPool{
		pool: NewGenericPool(func() *bytes.Buffer {
			return bytes.NewBuffer(make([]byte, 0, initialCapacity))
		}),
		maxRetained: maxRetainedBufferSize,
	}
}

// Get retrieves an empty buffer from the pool.
func (bp *bufferPool) Get() *bytes.Buffer {
	bp.gets.Add(1)
	return bp.pool.Get()
}

// Put resets buf and returns it to the pool.
func (bp *bufferPool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > bp.maxRetained {
		bp.dropped.Add(1)
		return
	}
	buf.Reset()
	bp.pool.Put(buf)
}

// GetMetrics returns the number of Get calls and the number of buffers dropped on Put.
func (bp *bufferPool) GetMetrics() (gets, dropped uint64) {
	return bp.gets.Load(), bp.dropped.Load()
}
