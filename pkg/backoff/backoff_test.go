package backoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBEBGrowsOnFailureAndShrinksOnSuccess(t *testing.T) {
	b := NewBEB(1, 64, 2, 42)
	b.SetNok()
	assert.Equal(t, uint32(2), b.Cw())
	b.SetNok()
	assert.Equal(t, uint32(4), b.Cw())
	b.SetOk()
	assert.Equal(t, uint32(2), b.Cw())
	b.SetOk()
	assert.Equal(t, uint32(1), b.Cw())
}

func TestBEBClampsAtMax(t *testing.T) {
	b := NewBEB(1, 4, 2, 1)
	for i := 0; i < 10; i++ {
		b.SetNok()
	}
	assert.Equal(t, uint32(4), b.Cw())
}

func TestEIEDGrowsBySqrtOnSuccess(t *testing.T) {
	e := NewEIED(1, 1024, 4, 7)
	e.SetNok()
	e.SetNok() // cw = 16
	assert.Equal(t, uint32(16), e.Cw())
	e.SetOk() // cw = 16*sqrt(4) = 32
	assert.Equal(t, uint32(32), e.Cw())
}

func TestEIEDSuccessClampsAtMax(t *testing.T) {
	e := NewEIED(1, 20, 4, 7)
	e.SetNok()
	e.SetNok() // cw = 16
	e.SetOk()  // cw = 16*sqrt(4) = 32, clamped to 20
	assert.Equal(t, uint32(20), e.Cw())
}

func TestDelayWithinWindow(t *testing.T) {
	b := NewBEB(1, 64, 2, 99)
	for i := 0; i < 50; i++ {
		d := b.SetNok()
		assert.Less(t, d, b.Cw()+1)
	}
}
