package beat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	r := newRing(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.Push(v)
	}

	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Full())
	assert.Equal(t, []float64{3, 4, 5}, r.Values(nil))
}

func TestRingValuesOrdered(t *testing.T) {
	r := newRing(4)
	r.Push(10)
	r.Push(20)

	assert.Equal(t, []float64{10, 20}, r.Values(nil))
	assert.False(t, r.Full())

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 20.0, last)
}

func TestRingReset(t *testing.T) {
	r := newRing(2)
	r.Push(1)
	r.Push(2)
	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Values(nil))

	_, ok := r.Last()
	assert.False(t, ok)
}
