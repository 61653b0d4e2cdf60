package terminal

import (
	"fmt"
	"sort"

	rcs2mac "github.com/opensand/rcs2mac"
)

// AccessType is the access class of a CarriersGroup (spec.md §3).
type AccessType uint8

const (
	AccessDAMA AccessType = iota
	AccessALOHA
	AccessSCPC
	AccessVCM
)

func (a AccessType) String() string {
	switch a {
	case AccessDAMA:
		return "DAMA"
	case AccessALOHA:
		return "ALOHA"
	case AccessSCPC:
		return "SCPC"
	case AccessVCM:
		return "VCM"
	default:
		return "UNKNOWN"
	}
}

// CarriersGroup is C4: a partition of the return-link spectrum carrying
// carriers of equivalent access class (spec.md §3).
type CarriersGroup struct {
	CarriersID      uint8
	SpotID          uint16 // supplemented per SPEC_FULL.md §5
	SymbolRateBauds uint64
	CarriersCount   uint32

	// AllowedModcodIDs is ordered low to high efficiency.
	AllowedModcodIDs []uint8

	Ratio      float64
	AccessType AccessType

	// NominalModcodID is the single MODCOD used for Step A capacity
	// initialization (spec.md §4.7 step A: "using the carrier's (single)
	// MODCOD"), distinct from the per-terminal AllowedModcodIDs set used
	// for the ModcodMismatch check.
	NominalModcodID uint8

	// RemainingCapacity in packets-per-superframe; reset each superframe by
	// the DAMA controller's Step A (spec.md §4.7).
	RemainingCapacity uint32
}

// HighestModcod returns the group's highest allowed modcod id.
func (g *CarriersGroup) HighestModcod() uint8 {
	if len(g.AllowedModcodIDs) == 0 {
		return 0
	}
	return g.AllowedModcodIDs[len(g.AllowedModcodIDs)-1]
}

// SupportsModcod reports whether id is within the group's allowed set.
func (g *CarriersGroup) SupportsModcod(id uint8) bool {
	for _, m := range g.AllowedModcodIDs {
		if m == id {
			return true
		}
	}
	return false
}

// ResetCapacity resets RemainingCapacity to totalPktpf at the start of a
// superframe (spec.md §4.7 Step A).
func (g *CarriersGroup) ResetCapacity(totalPktpf uint32) {
	g.RemainingCapacity = totalPktpf
}

// Category is C4: groups CarriersGroups of one access class together with
// the terminals assigned to it. Invariant: the union of allowed_modcod_ids
// across its groups is non-empty (spec.md §3).
type Category struct {
	Label  string
	SpotID uint16

	groups    []*CarriersGroup
	terminals map[uint16]*Context
}

// NewCategory builds a category from its carrier groups, validating the
// non-empty-modcod-union invariant.
func NewCategory(label string, spotID uint16, groups []*CarriersGroup) (*Category, error) {
	union := map[uint8]struct{}{}
	for _, g := range groups {
		for _, m := range g.AllowedModcodIDs {
			union[m] = struct{}{}
		}
	}
	if len(union) == 0 {
		return nil, fmt.Errorf("%w: category %q has no allowed modcods across its carrier groups",
			rcs2mac.ErrBadValue, label)
	}
	return &Category{
		Label:     label,
		SpotID:    spotID,
		groups:    append([]*CarriersGroup(nil), groups...),
		terminals: make(map[uint16]*Context),
	}, nil
}

// Groups returns the category's carrier groups in a stable order.
func (c *Category) Groups() []*CarriersGroup {
	out := append([]*CarriersGroup(nil), c.groups...)
	sort.Slice(out, func(i, j int) bool { return out[i].CarriersID < out[j].CarriersID })
	return out
}

// AddTerminal registers a terminal in this category on logon. Fails if the
// terminal already belongs here. Membership in other categories is not
// checked, here or in logon.Handler, which looks only at the requested
// category.
func (c *Category) AddTerminal(ctx *Context) error {
	if _, dup := c.terminals[ctx.TalID]; dup {
		return rcs2mac.ErrDuplicateTalId
	}
	ctx.CategoryLabel = c.Label
	c.terminals[ctx.TalID] = ctx
	return nil
}

// RemoveTerminal deregisters a terminal on logoff.
func (c *Category) RemoveTerminal(talID uint16) {
	delete(c.terminals, talID)
}

// Terminal looks up a terminal context by id.
func (c *Category) Terminal(talID uint16) (*Context, bool) {
	ctx, ok := c.terminals[talID]
	return ctx, ok
}

// Terminals returns all terminals currently in this category, in a stable
// order (ascending tal id) so allocation is deterministic.
func (c *Category) Terminals() []*Context {
	out := make([]*Context, 0, len(c.terminals))
	for _, ctx := range c.terminals {
		out = append(out, ctx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TalID < out[j].TalID })
	return out
}

// TerminalsOnCarrier returns the terminals currently assigned to a given
// carrier within this category.
func (c *Category) TerminalsOnCarrier(carrierID uint8) []*Context {
	var out []*Context
	for _, ctx := range c.Terminals() {
		if ctx.CarrierID == carrierID {
			out = append(out, ctx)
		}
	}
	return out
}
