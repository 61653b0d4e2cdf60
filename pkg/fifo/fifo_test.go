package fifo

import (
	"testing"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopInvariants(t *testing.T) {
	f := New(0, 2)
	require.NoError(t, f.Push(Packet{Payload: []byte("abc")}))
	require.NoError(t, f.Push(Packet{Payload: []byte("de")}))

	assert.Equal(t, uint32(2), f.CurrentPkt())
	assert.EqualValues(t, 5, f.CurrentBytes())

	err := f.Push(Packet{Payload: []byte("x")})
	assert.ErrorIs(t, err, rcs2mac.ErrFifoFull)

	stats := f.GetStatsContext()
	assert.EqualValues(t, 2, stats.In)
	assert.EqualValues(t, 1, stats.Drop)

	p, err := f.Pop()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p.Payload))
	assert.Equal(t, uint32(1), f.CurrentPkt())
	assert.EqualValues(t, 2, f.CurrentBytes())
}

func TestPopEmpty(t *testing.T) {
	f := New(0, 4)
	_, err := f.Pop()
	assert.ErrorIs(t, err, rcs2mac.ErrFifoEmpty)
}

func TestPushFrontDoesNotCountAsIn(t *testing.T) {
	f := New(0, 4)
	require.NoError(t, f.Push(Packet{Payload: []byte("a")}))
	_, err := f.Pop()
	require.NoError(t, err)

	f.PushFront(Packet{Payload: []byte("residue")})
	assert.Equal(t, uint32(1), f.CurrentPkt())
	stats := f.GetStatsContext()
	assert.EqualValues(t, 1, stats.In)
	assert.EqualValues(t, 1, stats.Out)

	p, ok := f.Peek()
	require.True(t, ok)
	assert.Equal(t, "residue", string(p.Payload))
}

func TestClearReturnsDroppedCount(t *testing.T) {
	f := New(0, 4)
	require.NoError(t, f.Push(Packet{Payload: []byte("a")}))
	require.NoError(t, f.Push(Packet{Payload: []byte("b")}))
	n := f.Clear()
	assert.Equal(t, 2, n)
	assert.Equal(t, uint32(0), f.CurrentPkt())
	assert.EqualValues(t, 0, f.CurrentBytes())
}

func TestSetOrderedByQoS(t *testing.T) {
	s := NewSet()
	s.Add(New(2, 10))
	s.Add(New(0, 10))
	s.Add(New(1, 10))

	ordered := s.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, uint8(0), ordered[0].QoS())
	assert.Equal(t, uint8(1), ordered[1].QoS())
	assert.Equal(t, uint8(2), ordered[2].QoS())
}
