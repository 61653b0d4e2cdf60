package dama

import (
	"testing"

	"github.com/opensand/rcs2mac/pkg/modcod"
	"github.com/opensand/rcs2mac/pkg/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConverter builds a converter where, by construction, 1 kbps of
// request rate equals exactly 1 packet-per-superframe: a 1 second
// superframe and 125-byte (1000-bit) packets.
func newTestConverter(t *testing.T) *modcod.Converter {
	t.Helper()
	table, err := modcod.NewTable([]modcod.Def{
		{ID: 1, SpectralEfficiencyBpsPerSymbol: 1.0, RequiredEsn0Db: 0, BurstLengthSymbols: 100},
	})
	require.NoError(t, err)
	return modcod.NewConverter(table, 1000, 125)
}

func newTestCategory(t *testing.T, conv *modcod.Converter, capacityPktpf uint32) (*terminal.Category, *terminal.CarriersGroup) {
	t.Helper()
	// SymbolRateBauds * CarriersCount * 1s gives the symbol count
	// (capacityPktpf*1000); at spectral efficiency 1.0 bps/sym that is as
	// many bits, and with 1000-bit packets it is the desired
	// packets-per-superframe.
	group := &terminal.CarriersGroup{
		CarriersID:      1,
		SpotID:          1,
		SymbolRateBauds: uint64(capacityPktpf) * 1000,
		CarriersCount:   1,
		AllowedModcodIDs: []uint8{1},
		AccessType:      terminal.AccessDAMA,
		NominalModcodID: 1,
	}
	cat, err := terminal.NewCategory("std", 1, []*terminal.CarriersGroup{group})
	require.NoError(t, err)
	return cat, group
}

func addTerminal(t *testing.T, cat *terminal.Category, talID uint16, craKbps, maxRbdcKbps float64, maxVbdcPkt uint32) *terminal.Context {
	t.Helper()
	ctx := terminal.NewContext(talID, cat.Label, craKbps, maxRbdcKbps, maxVbdcPkt)
	ctx.CurrentInputModcodID = 1
	ctx.CarrierID = 1
	require.NoError(t, cat.AddTerminal(ctx))
	return ctx
}

// TestRbdcUncontendedGrantsFullRequest is spec.md §8 scenario S1: when the
// carrier has enough spare capacity, every RBDC request is granted in full
// and no credit accrues.
func TestRbdcUncontendedGrantsFullRequest(t *testing.T) {
	conv := newTestConverter(t)
	cat, _ := newTestCategory(t, conv, 1000)
	a := addTerminal(t, cat, 1, 0, 500, 0)
	a.SetRbdcRequest(300)

	ctrl := NewController(conv, Params{})
	allocs := ctrl.Run([]*terminal.Category{cat})

	require.Len(t, allocs, 1)
	assert.Equal(t, uint32(300), allocs[0].RbdcPktpf)
	assert.Equal(t, float64(0), a.RbdcCreditKbps)
}

// TestRbdcContendedFairShare is spec.md §8 scenario S2: three terminals
// request 1000/800/400 kbps against a 1000-pktpf carrier. fair_share is
// 2.2 and each gets floor(request/fair_share): 454, 363, 181.
func TestRbdcContendedFairShare(t *testing.T) {
	conv := newTestConverter(t)
	cat, _ := newTestCategory(t, conv, 1000)
	a := addTerminal(t, cat, 1, 0, 2000, 0)
	b := addTerminal(t, cat, 2, 0, 2000, 0)
	c := addTerminal(t, cat, 3, 0, 2000, 0)
	a.SetRbdcRequest(1000)
	b.SetRbdcRequest(800)
	c.SetRbdcRequest(400)

	ctrl := NewController(conv, Params{})
	allocs := ctrl.Run([]*terminal.Category{cat})

	byTal := map[uint16]Allocation{}
	for _, al := range allocs {
		byTal[al.TalID] = al
	}
	assert.Equal(t, uint32(454), byTal[1].RbdcPktpf)
	assert.Equal(t, uint32(363), byTal[2].RbdcPktpf)
	assert.Equal(t, uint32(181), byTal[3].RbdcPktpf)

	// 998 of 1000 packets were distributed; the 2 leftover went unawarded
	// since no terminal's rounding credit yet reaches one packet's worth.
	assert.Greater(t, a.RbdcCreditKbps, 0.0)
	assert.Greater(t, b.RbdcCreditKbps, 0.0)
	assert.Greater(t, c.RbdcCreditKbps, 0.0)
}

// TestVbdcExhaustionCarriesResidual is spec.md §8 scenario S4: two VBDC
// requests (100, 60 pkt) against 90 pkt of remaining capacity. The larger
// request is served first and only partially; its unserved residual
// carries into the next superframe's request.
func TestVbdcExhaustionCarriesResidual(t *testing.T) {
	conv := newTestConverter(t)
	cat, _ := newTestCategory(t, conv, 90)
	a := addTerminal(t, cat, 1, 0, 0, 200)
	b := addTerminal(t, cat, 2, 0, 0, 200)
	a.SetVbdcRequest(100)
	b.SetVbdcRequest(60)

	ctrl := NewController(conv, Params{})
	allocs := ctrl.Run([]*terminal.Category{cat})

	byTal := map[uint16]Allocation{}
	for _, al := range allocs {
		byTal[al.TalID] = al
	}
	assert.Equal(t, uint32(90), byTal[1].VbdcPkt)
	assert.Equal(t, uint32(0), byTal[2].VbdcPkt)
	assert.Equal(t, uint32(10), a.VbdcRequestPkt, "unserved residual of the partially-served request carries over")
	assert.Equal(t, uint32(60), b.VbdcRequestPkt, "fully-unserved request carries over in full")
}

// TestFcaGivenToLowestCreditFirst is spec.md §8 scenario for step D: free
// capacity left after RBDC/VBDC goes to the terminal least "in credit".
func TestFcaGivenToLowestCreditFirst(t *testing.T) {
	conv := newTestConverter(t)
	cat, _ := newTestCategory(t, conv, 60)
	a := addTerminal(t, cat, 1, 0, 0, 0)
	b := addTerminal(t, cat, 2, 0, 0, 0)
	// FCA-only terminals: an RBDC pass would reset both credits to 0.
	a.Supported = terminal.RequestFCA
	b.Supported = terminal.RequestFCA
	a.RbdcCreditKbps = 5
	b.RbdcCreditKbps = 1

	ctrl := NewController(conv, Params{FcaKbps: 50})
	allocs := ctrl.Run([]*terminal.Category{cat})

	byTal := map[uint16]Allocation{}
	for _, al := range allocs {
		byTal[al.TalID] = al
	}
	assert.Equal(t, uint32(50), byTal[2].FcaPktpf, "lower credit terminal served first")
	assert.Equal(t, uint32(10), byTal[1].FcaPktpf, "higher credit terminal gets only the 10 pktpf left")
}

// TestModcodMismatchExcludesTerminal is spec.md §4.7 failure mode
// ModcodMismatch: a terminal whose current modcod isn't in the carrier's
// allowed set gets no allocation and is excluded rather than crashing the
// whole carrier's run.
func TestModcodMismatchExcludesTerminal(t *testing.T) {
	conv := newTestConverter(t)
	cat, _ := newTestCategory(t, conv, 1000)
	a := addTerminal(t, cat, 1, 0, 500, 0)
	a.CurrentInputModcodID = 9 // not in the carrier's allowed set
	a.SetRbdcRequest(300)

	ctrl := NewController(conv, Params{})
	allocs := ctrl.Run([]*terminal.Category{cat})

	assert.Empty(t, allocs)
}

// TestCapacityInitFailureSkipsCarrier covers stepA returning an error (here
// by way of an unknown nominal modcod), which must skip the whole carrier
// without panicking.
func TestCapacityInitFailureSkipsCarrier(t *testing.T) {
	conv := newTestConverter(t)
	cat, group := newTestCategory(t, conv, 1000)
	group.NominalModcodID = 77
	addTerminal(t, cat, 1, 0, 500, 0)

	ctrl := NewController(conv, Params{})
	allocs := ctrl.Run([]*terminal.Category{cat})

	assert.Empty(t, allocs)
}
