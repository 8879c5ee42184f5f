package visited

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	v := New(10)

	assert.False(t, v.Visited(1))
	assert.False(t, v.Visited(5))

	v.Visit(1)
	assert.True(t, v.Visited(1))
	assert.False(t, v.Visited(5))

	v.Visit(5)
	assert.True(t, v.Visited(1))
	assert.True(t, v.Visited(5))

	v.Reset()
	assert.False(t, v.Visited(1))
	assert.False(t, v.Visited(5))

	v.Visit(1)
	assert.True(t, v.Visited(1))
	assert.False(t, v.Visited(5))

	v.Visit(15)
	assert.True(t, v.Visited(15))
	assert.True(t, v.Visited(1))
}

func TestSetGrow(t *testing.T) {
	v := New(2)
	v.Visit(1)
	assert.True(t, v.Visited(1))

	// Past the initial capacity.
	v.Visit(1000)
	assert.True(t, v.Visited(1000))
	assert.True(t, v.Visited(1))
	assert.False(t, v.Visited(999))
}
