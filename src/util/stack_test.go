package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStackGet checks Get against every valid n for stack sizes 1-4,
// top down (Get(1) is the most recently pushed element, matching Peek;
// Get(size) is the first element pushed, the bottom).
func TestStackGet(t *testing.T) {
	for size := 1; size <= 4; size++ {
		s := &Stack{}
		for i := 0; i < size; i++ {
			s.Push(i) // pushes 0, 1, ..., size-1 in order
		}
		for n := 1; n <= size; n++ {
			want := size - n
			got := s.Get(n)
			assert.Equal(t, want, got, "Get(%d) on a %d-element stack", n, size)
		}
	}
}

// TestStackGetOutOfRange checks that Get rejects n outside [1, size].
func TestStackGetOutOfRange(t *testing.T) {
	s := &Stack{}
	s.Push(1)
	s.Push(2)

	assert.Nil(t, s.Get(0))
	assert.Nil(t, s.Get(-1))
	assert.Nil(t, s.Get(3))
}

// TestStackGetMatchesPeek checks that Get(1) always agrees with Peek.
func TestStackGetMatchesPeek(t *testing.T) {
	s := &Stack{}
	for i := 0; i < 5; i++ {
		s.Push(i)
		assert.Equal(t, s.Peek(), s.Get(1))
	}
}
