// Package backoff implements C6 (SaloháBackoff): pluggable Slotted-Aloha
// contention-window backoff state machines (BEB, EIED). Grounded on
// pkg/sync/sync.go's small state-machine-with-counters style in the
// teacher repo (counter/timer fields updated by a single entry point).
package backoff

import (
	"math"
	"math/rand"
)

// Algorithm is the pluggable backoff capability (spec.md §4.4). Each
// instance owns an independent PRNG, per spec.md §5's "each block owns an
// independent PRNG seeded from configuration" -- here each terminal's
// backoff instance is itself the "block" for reproducibility purposes.
type Algorithm interface {
	// SetOk registers a successful transmission and returns the next
	// transmission delay, in superframes.
	SetOk() uint32
	// SetNok registers a failed transmission and returns the next
	// transmission delay, in superframes.
	SetNok() uint32
	// Cw returns the current contention window, for diagnostics/tests.
	Cw() uint32
}

// base holds the fields common to BEB and EIED (spec.md §4.4).
type base struct {
	cw       uint32
	cwMin    uint32
	cwMax    uint32
	multiple uint32
	rng      *rand.Rand
}

func newBase(cwMin, cwMax, multiple uint32, seed int64) base {
	if cwMin < 1 {
		cwMin = 1
	}
	return base{cw: cwMin, cwMin: cwMin, cwMax: cwMax, multiple: multiple, rng: rand.New(rand.NewSource(seed))}
}

func (b *base) Cw() uint32 { return b.cw }

// draw returns a uniform integer delay in [0, cw), per spec.md §4.4.
func (b *base) draw() uint32 {
	if b.cw <= 1 {
		return 0
	}
	return uint32(b.rng.Int63n(int64(b.cw)))
}

// BEB is Binary Exponential Backoff (spec.md §4.4).
type BEB struct{ base }

// NewBEB builds a BEB backoff with the given contention window bounds and
// multiplicative factor, seeded for reproducibility.
func NewBEB(cwMin, cwMax, multiple uint32, seed int64) *BEB {
	return &BEB{newBase(cwMin, cwMax, multiple, seed)}
}

func (b *BEB) SetOk() uint32 {
	next := b.cw / b.multiple
	if next < b.cwMin {
		next = b.cwMin
	}
	b.cw = next
	return b.draw()
}

func (b *BEB) SetNok() uint32 {
	next := b.cw * b.multiple
	if next > b.cwMax {
		next = b.cwMax
	}
	b.cw = next
	return b.draw()
}

// EIED is Exponential Increase, Exponential Decrease backoff (spec.md
// §4.4): success scales the window up by sqrt(multiple), a gentler climb
// than the full multiple a failure applies.
type EIED struct{ base }

// NewEIED builds an EIED backoff.
func NewEIED(cwMin, cwMax, multiple uint32, seed int64) *EIED {
	return &EIED{newBase(cwMin, cwMax, multiple, seed)}
}

func (e *EIED) SetOk() uint32 {
	next := uint32(float64(e.cw) * math.Sqrt(float64(e.multiple)))
	if next > e.cwMax {
		next = e.cwMax
	}
	e.cw = next
	return e.draw()
}

func (e *EIED) SetNok() uint32 {
	next := e.cw * e.multiple
	if next > e.cwMax {
		next = e.cwMax
	}
	e.cw = next
	return e.draw()
}
