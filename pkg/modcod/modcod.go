// Package modcod implements the static MODCOD table (C2) and the unit
// conversions (C1) between kbit/s, packets-per-superframe and symbols that
// depend on it. Grounded on pkg/od/encoding.go's table-driven fixed-point
// conversions in the teacher repo.
package modcod

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
)

// Def is an immutable MODCOD definition (spec.md §3).
type Def struct {
	ID                     uint8
	SpectralEfficiencyBpsPerSymbol float64
	RequiredEsn0Db         float32
	BurstLengthSymbols     uint32
}

// Table is a static, load-once lookup table of MODCOD definitions, ordered
// by id. Invariant: strictly increasing SpectralEfficiencyBpsPerSymbol by
// id within the table (spec.md §3).
type Table struct {
	byID    map[uint8]Def
	ordered []Def // sorted by id, ascending
	log     *logrus.Entry
}

// NewTable builds a Table from a set of definitions, validating the
// strictly-increasing-efficiency invariant.
func NewTable(defs []Def) (*Table, error) {
	t := &Table{
		byID: make(map[uint8]Def, len(defs)),
		log:  logrus.WithField("block", "modcod"),
	}
	ordered := append([]Def(nil), defs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	var lastEff float64 = -1
	for _, d := range ordered {
		if d.ID == 0 || d.ID > 32 {
			return nil, fmt.Errorf("%w: modcod id %d out of [1,32]", rcs2mac.ErrBadValue, d.ID)
		}
		if _, dup := t.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate modcod id %d", rcs2mac.ErrBadValue, d.ID)
		}
		if d.SpectralEfficiencyBpsPerSymbol <= lastEff {
			return nil, fmt.Errorf("%w: modcod id %d efficiency %.3f not strictly increasing",
				rcs2mac.ErrBadValue, d.ID, d.SpectralEfficiencyBpsPerSymbol)
		}
		lastEff = d.SpectralEfficiencyBpsPerSymbol
		t.byID[d.ID] = d
		t.ordered = append(t.ordered, d)
	}
	if len(t.ordered) == 0 {
		return nil, fmt.Errorf("%w: empty modcod table", rcs2mac.ErrMissingParam)
	}
	t.log.WithField("count", len(t.ordered)).Info("modcod table loaded")
	return t, nil
}

// Def looks up a MODCOD definition by id.
func (t *Table) Def(id uint8) (Def, error) {
	d, ok := t.byID[id]
	if !ok {
		return Def{}, rcs2mac.ErrUnknownModcod
	}
	return d, nil
}

// BestIDFor returns the highest modcod id whose RequiredEsn0Db <= esn0Db.
func (t *Table) BestIDFor(esn0Db float32) (uint8, error) {
	if len(t.ordered) == 0 || t.ordered[0].RequiredEsn0Db > esn0Db {
		return 0, fmt.Errorf("no modcod available for esn0=%.2fdB: %w", esn0Db, errNoModcodAvailable)
	}
	best := t.ordered[0]
	for _, d := range t.ordered {
		if d.RequiredEsn0Db <= esn0Db {
			best = d
		} else {
			break
		}
	}
	return best.ID, nil
}

// errNoModcodAvailable is local, not shared via rcs2mac.Err*, because it is
// only ever surfaced wrapped with the esn0 value for diagnostics.
var errNoModcodAvailable = errors.New("no modcod available")

// ErrNoModcodAvailable reports whether err originates from BestIDFor
// failing to find any usable modcod.
func ErrNoModcodAvailable(err error) bool {
	return errors.Is(err, errNoModcodAvailable)
}
