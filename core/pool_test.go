package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		pool := NewBufferPool(64)

		buf := pool.Get()
		require.NotNil(t, buf, "Get() should not return a nil buffer")
		assert.Equal(t, 0, buf.Len())
		assert.GreaterOrEqual(t, buf.Cap(), 64)

		buf.WriteString("hello world")
		assert.Equal(t, "hello world", buf.String())

		pool.Put(buf)
		assert.Equal(t, 0, buf.Len(), "Put should reset the buffer")

		gets, dropped := pool.GetMetrics()
		assert.Equal(t, uint64(1), gets)
		assert.Equal(t, uint64(0), dropped)
	})

	t.Run("Oversized buffers are dropped", func(t *testing.T) {
		pool := NewBufferPool(0)
		big := bytes.NewBuffer(make([]byte, 0, maxRetainedBufferSize+1))
		pool.Put(big)

		_, dropped := pool.GetMetrics()
		assert.Equal(t, uint64(1), dropped)
	})

	t.Run("Nil put is ignored", func(t *testing.T) {
		pool := NewBufferPool(0)
		require.NotPanics(t, func() { pool.Put(nil) })
	})
}

func TestGenericPool(t *testing.T) {
	created := 0
	pool := NewGenericPool(func() []byte {
		created++
		return make([]byte, 8)
	})

	item := pool.Get()
	assert.Len(t, item, 8)
	pool.Put(item)
	assert.GreaterOrEqual(t, created, 1)
}
