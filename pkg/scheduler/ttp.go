package scheduler

import (
	"encoding/binary"
	"sort"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/dama"
)

// ttpEntryLen is the wire size of one TimePlan entry: tal_id(2) +
// carrier_id(1) + first_slot(2) + nb_slots(2) + modcod_id(1).
const ttpEntryLen = 8

// TTPEntry is one terminal's slot assignment within a superframe's Terminal
// Time Plan (spec.md §3: "TimePlan (TTP) ... per-superframe per-terminal:
// {tal_id -> (carrier_id, first_slot, nb_slots, modcod_id)}").
type TTPEntry struct {
	TalID     uint16
	CarrierID uint8
	FirstSlot uint16
	NbSlots   uint16
	ModcodID  uint8
}

// buildTTPFrame turns this superframe's allocations into a broadcast Ttp
// frame, assigning each terminal a disjoint slot run within its carrier by
// packing allocations back to back in ascending tal_id order (spec.md §3
// invariant: "slot intervals for a carrier are disjoint"). Returns nil if
// there is nothing to announce.
func (s *Scheduler) buildTTPFrame(allocations []dama.Allocation) *rcs2mac.DvbFrame {
	if len(allocations) == 0 {
		return nil
	}
	sorted := make([]dama.Allocation, len(allocations))
	copy(sorted, allocations)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CarrierID != sorted[j].CarrierID {
			return sorted[i].CarrierID < sorted[j].CarrierID
		}
		return sorted[i].TalID < sorted[j].TalID
	})

	nextSlot := make(map[uint8]uint16)
	entries := make([]TTPEntry, 0, len(sorted))
	for _, alloc := range sorted {
		nbSlots := uint16(alloc.Total())
		if nbSlots == 0 {
			continue
		}
		first := nextSlot[alloc.CarrierID]
		entries = append(entries, TTPEntry{
			TalID:     alloc.TalID,
			CarrierID: alloc.CarrierID,
			FirstSlot: first,
			NbSlots:   nbSlots,
			ModcodID:  alloc.ModcodID,
		})
		nextSlot[alloc.CarrierID] = first + nbSlots
	}
	if len(entries) == 0 {
		return nil
	}

	body := make([]byte, len(entries)*ttpEntryLen)
	for i, e := range entries {
		off := i * ttpEntryLen
		binary.LittleEndian.PutUint16(body[off:], e.TalID)
		body[off+2] = e.CarrierID
		binary.LittleEndian.PutUint16(body[off+3:], e.FirstSlot)
		binary.LittleEndian.PutUint16(body[off+5:], e.NbSlots)
		body[off+7] = e.ModcodID
	}

	return &rcs2mac.DvbFrame{
		Header: rcs2mac.CommonHeader{
			MessageType: rcs2mac.MsgTtp,
			CarrierID:   s.dataOutCarrierID,
			SpotID:      s.spotID,
			CniCentibels: rcs2mac.NoCni,
		},
		Payload: body,
	}
}

// DecodeTTP parses a Ttp frame's payload back into its entries.
func DecodeTTP(payload []byte) ([]TTPEntry, error) {
	if len(payload)%ttpEntryLen != 0 {
		return nil, rcs2mac.ErrShortFrame
	}
	n := len(payload) / ttpEntryLen
	out := make([]TTPEntry, n)
	for i := 0; i < n; i++ {
		off := i * ttpEntryLen
		out[i] = TTPEntry{
			TalID:     binary.LittleEndian.Uint16(payload[off:]),
			CarrierID: payload[off+2],
			FirstSlot: binary.LittleEndian.Uint16(payload[off+3:]),
			NbSlots:   binary.LittleEndian.Uint16(payload[off+5:]),
			ModcodID:  payload[off+7],
		}
	}
	return out, nil
}
