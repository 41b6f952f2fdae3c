package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	r := New[int](4)
	require.NoError(t, r.Push(1))
	require.NoError(t, r.Push(2))
	v, err := r.Pop()
	require.NoError(t, err)
	require.Equal(t, 1, v)
	v, err = r.Pop()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestCapacityGapSentinel(t *testing.T) {
	r := New[int](4)
	require.Equal(t, 3, r.Cap())
	require.NoError(t, r.Push(1))
	require.NoError(t, r.Push(2))
	require.NoError(t, r.Push(3))
	require.ErrorIs(t, r.Push(4), ErrFull)
}

func TestPopEmpty(t *testing.T) {
	r := New[int](4)
	_, err := r.Pop()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestPushDropOldest(t *testing.T) {
	r := New[int](4)
	require.NoError(t, r.Push(1))
	require.NoError(t, r.Push(2))
	require.NoError(t, r.Push(3))
	dropped := r.PushDropOldest(4)
	require.True(t, dropped)
	v, _ := r.Pop()
	require.Equal(t, 2, v)
}
