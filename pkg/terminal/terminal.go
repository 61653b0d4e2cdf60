// Package terminal implements C3 (TerminalContext) and C4
// (CarriersGroup/TerminalCategory): per-terminal MAC state and the
// partition of the return-link spectrum into carriers grouped by access
// class. Grounded on pkg/config/general.go's plain read-only record types
// and pkg/node/node.go's BaseNode id/state bookkeeping in the teacher repo.
package terminal

import "math"

// RequestKind is a bitmask of the capacity request types a terminal is
// allowed to use, supplementing spec.md per original_source's
// CR_CAPACITY_TYPE (see SPEC_FULL.md §5): a terminal whose category never
// sends a kind of request is skipped entirely for that DAMA phase instead
// of contributing an implicit zero request.
type RequestKind uint8

const (
	RequestRBDC RequestKind = 1 << iota
	RequestVBDC
	RequestFCA
)

func (r RequestKind) Supports(kind RequestKind) bool { return r&kind != 0 }

// Context is C3: per-terminal state, created on logon and destroyed on
// logoff (spec.md §3).
type Context struct {
	TalID         uint16
	CategoryLabel string

	CurrentInputModcodID  uint8
	CurrentOutputModcodID uint8

	CraKbps float64

	MaxRbdcKbps  float64
	MaxVbdcPkt   uint32
	MaxRbdcPktpf uint32

	RbdcRequestKbps float64
	VbdcRequestPkt  uint32

	RbdcAllocPktpf uint32
	VbdcAllocPkt   uint32
	FcaAllocPktpf  uint32

	// RbdcCreditKbps is the fractional carry-over from fair-share rounding
	// (spec.md §4.7 step B.3); it saturates at 0 and is bounded above by
	// one packet's worth of rate (spec.md §3 invariant), per the Open
	// Question decision in DESIGN.md.
	RbdcCreditKbps float64

	SCPC bool

	// Supported is the supplemented request-kind bitmask (SPEC_FULL.md §5).
	Supported RequestKind

	// CarrierID is the return-link carrier this terminal is currently
	// assigned to within its category; DAMA allocates for it only on the
	// carrier group with this CarriersID. Neither the DAMA controller nor
	// the scheduler assigns it: it keeps the value the caller set (0 after
	// NewContext).
	CarrierID uint8
}

// NewContext creates a terminal context on logon with sane zeroed
// allocation/credit state.
func NewContext(talID uint16, categoryLabel string, craKbps float64, maxRbdcKbps float64, maxVbdcPkt uint32) *Context {
	return &Context{
		TalID:         talID,
		CategoryLabel: categoryLabel,
		CraKbps:       craKbps,
		MaxRbdcKbps:   maxRbdcKbps,
		MaxVbdcPkt:    maxVbdcPkt,
		Supported:     RequestRBDC | RequestVBDC | RequestFCA,
	}
}

// SetRbdcRequest clamps the request to MaxRbdcKbps (spec.md §3 invariant).
func (c *Context) SetRbdcRequest(kbps float64) {
	if kbps > c.MaxRbdcKbps {
		kbps = c.MaxRbdcKbps
	}
	if kbps < 0 {
		kbps = 0
	}
	c.RbdcRequestKbps = kbps
}

// SetVbdcRequest clamps the request to MaxVbdcPkt (spec.md §3 invariant).
func (c *Context) SetVbdcRequest(pkt uint32) {
	if pkt > c.MaxVbdcPkt {
		pkt = c.MaxVbdcPkt
	}
	c.VbdcRequestPkt = pkt
}

// AddRbdcCredit adds (or subtracts, if negative) to the credit, saturating
// at 0 (DESIGN.md Open Question decision) and capping above at oneUnitKbps
// (one packet's worth of rate at the terminal's current modcod).
func (c *Context) AddRbdcCredit(deltaKbps float64, oneUnitKbps float64) {
	c.RbdcCreditKbps = clampNonNegative(c.RbdcCreditKbps + deltaKbps)
	if oneUnitKbps > 0 && c.RbdcCreditKbps > oneUnitKbps {
		c.RbdcCreditKbps = oneUnitKbps
	}
}

// TotalAllocPktpf sums the three allocation phases (spec.md §4.7 invariant).
func (c *Context) TotalAllocPktpf() uint32 {
	return c.RbdcAllocPktpf + c.VbdcAllocPkt + c.FcaAllocPktpf
}

// ResetAllocations clears the per-superframe allocation fields; requests
// and credit survive across superframes.
func (c *Context) ResetAllocations() {
	c.RbdcAllocPktpf = 0
	c.VbdcAllocPkt = 0
	c.FcaAllocPktpf = 0
}

// clampNonNegative guards against NaN/negative floating point drift from
// repeated credit arithmetic.
func clampNonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
