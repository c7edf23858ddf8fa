package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUGetPut(t *testing.T) {
	c := NewLRU[int](2)

	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUEvictsOldest(t *testing.T) {
	var evicted []string
	c := NewLRU(2, WithOnEvict[int](func(key string, _ int) {
		evicted = append(evicted, key)
	}))

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // refresh "a", making "b" the eviction candidate
	c.Put("c", 3)

	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRUReplaceKeepsSize(t *testing.T) {
	c := NewLRU[int](2)

	c.Put("a", 1)
	c.Put("a", 9)

	assert.Equal(t, 1, c.Len())
	v, _ := c.Get("a")
	assert.Equal(t, 9, v)
}

func TestLRUDelete(t *testing.T) {
	c := NewLRU[int](2)
	c.Put("a", 1)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
