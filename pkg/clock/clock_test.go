package clock

import (
	"errors"
	"testing"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceNotifiesListenersInOrder(t *testing.T) {
	c := New(0)
	var got []uint32
	c.Subscribe(ListenerFunc(func(sf uint32) { got = append(got, sf*10) }))
	c.Subscribe(ListenerFunc(func(sf uint32) { got = append(got, sf*100) }))

	require.NoError(t, c.Advance(1))
	assert.Equal(t, []uint32{10, 100}, got)
	assert.Equal(t, uint32(1), c.Current())
}

func TestAdvanceRejectsBackwardsOrRepeatedSof(t *testing.T) {
	c := New(0)
	require.NoError(t, c.Advance(5))
	err := c.Advance(5)
	assert.True(t, errors.Is(err, rcs2mac.ErrBackwardsSof))
	err = c.Advance(3)
	assert.True(t, errors.Is(err, rcs2mac.ErrBackwardsSof))
	assert.Equal(t, uint32(5), c.Current())
}

func TestAdvanceAcceptsFirstCallAtAnyValue(t *testing.T) {
	c := New(0)
	require.NoError(t, c.Advance(42))
	assert.Equal(t, uint32(42), c.Current())
}
