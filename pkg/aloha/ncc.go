package aloha

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/probe"
)

// slotEntry is one replica received in a given slot during the current
// superframe's ingestion window.
type slotEntry struct {
	logical LogicalID
	frame   *rcs2mac.DvbFrame
}

// Ncc is C8: the GW-side Slotted-Aloha receiver. It ingests a superframe's
// worth of SlottedAlohaData frames, resolves collisions at the next SoF,
// and emits ACKs plus decapsulated bursts (spec.md §4.6).
type Ncc struct {
	log       *logrus.Entry
	spotID    uint16
	carrierID uint8

	currentSF uint32
	slotTable map[uint16][]slotEntry

	sink probe.Sink
}

// NewNcc builds an Ncc for one Slotted-Aloha carrier.
func NewNcc(spotID uint16, carrierID uint8) *Ncc {
	return &Ncc{
		log:       logrus.WithFields(logrus.Fields{"block": "aloha-ncc", "carrier_id": carrierID}),
		spotID:    spotID,
		carrierID: carrierID,
		slotTable: make(map[uint16][]slotEntry),
	}
}

// SetSink attaches the probe sink this Ncc reports named counters to
// (spec.md §9 "Probes and statistics"). Left unset, Ncc runs exactly as
// before -- reporting is purely additive.
func (n *Ncc) SetSink(sink probe.Sink) { n.sink = sink }

// IngestFrame indexes a received SlottedAlohaData frame by its slot, for
// later resolution (spec.md §4.6 step 1).
func (n *Ncc) IngestFrame(frame *rcs2mac.DvbFrame) error {
	if frame.Header.MessageType != rcs2mac.MsgSlottedAlohaData {
		return rcs2mac.ErrUnknownFrame
	}
	entry := slotEntry{
		logical: LogicalID{TalID: frame.SaTalID, BaseID: frame.SaBaseID},
		frame:   frame,
	}
	n.slotTable[frame.SaSlotID] = append(n.slotTable[frame.SaSlotID], entry)
	return nil
}

// Resolution is the output of Resolve for one superframe.
type Resolution struct {
	Acks    []rcs2mac.SaAckEntry
	Bursts  [][]byte
	Talks   []uint16 // tal ids with at least one decapsulated burst, parallel to Bursts
	Dropped int       // logical packets with all replicas collided
}

// Resolve is called once all of a superframe's SlottedAlohaData frames
// have been ingested (signalled by the arrival of the next SoF). For each
// slot: exactly one packet is "clean"; more than one are all "collided".
// For each logical packet with >=1 clean replica, it is marked received,
// exactly one decapsulated payload is emitted upward and an ACK is
// scheduled. Packets whose every replica collided are silently lost -- no
// NAK is sent; the ST learns by timeout (spec.md §4.6).
func (n *Ncc) Resolve(sf uint32, handler rcs2mac.PacketHandler) (Resolution, error) {
	// A logical packet is "received" as soon as ANY one of its replicas
	// landed alone in its slot, even if another of its replicas collided
	// in a different slot (spec.md §4.6 step 3: "with >= 1 clean replica").
	clean := make(map[LogicalID]*rcs2mac.DvbFrame)

	for slot, entries := range n.slotTable {
		if len(entries) == 1 {
			e := entries[0]
			if _, already := clean[e.logical]; !already {
				clean[e.logical] = e.frame
			}
			continue
		}
		n.log.WithField("slot", slot).WithField("count", len(entries)).Warn(rcs2mac.ErrSlotCollision.Error())
		if n.sink != nil {
			n.sink.Inc("aloha_slot_collision_total", prometheus.Labels{"carrier_id": strconv.Itoa(int(n.carrierID))})
		}
	}

	res := Resolution{}
	seen := make(map[LogicalID]bool)
	for id, frame := range clean {
		if seen[id] {
			continue
		}
		seen[id] = true
		var payload []byte
		if handler != nil {
			decoded, err := handler.Decode(frame.Payload)
			if err != nil {
				return res, err
			}
			if len(decoded) > 0 {
				payload = decoded[0]
			}
		} else {
			payload = frame.Payload
		}
		res.Bursts = append(res.Bursts, payload)
		res.Talks = append(res.Talks, id.TalID)
		res.Acks = append(res.Acks, rcs2mac.SaAckEntry{TalID: id.TalID, BaseID: id.BaseID})
	}

	// Count fully-collided logical packets that never produced a clean
	// replica, for diagnostics.
	allLogical := make(map[LogicalID]bool)
	for _, entries := range n.slotTable {
		for _, e := range entries {
			allLogical[e.logical] = true
		}
	}
	for id := range allLogical {
		if !seen[id] {
			res.Dropped++
		}
	}

	n.currentSF = sf
	n.slotTable = make(map[uint16][]slotEntry)
	return res, nil
}

// BuildAckFrame packages a Resolution's acks into one SlottedAlohaAck
// frame, or nil if there is nothing to acknowledge.
func (n *Ncc) BuildAckFrame(acks []rcs2mac.SaAckEntry, ackCarrierID uint8) *rcs2mac.DvbFrame {
	if len(acks) == 0 {
		return nil
	}
	return &rcs2mac.DvbFrame{
		Header: rcs2mac.CommonHeader{
			MessageType: rcs2mac.MsgSlottedAlohaAck,
			CarrierID:   ackCarrierID,
			SpotID:      n.spotID,
		},
		SaAcks: acks,
	}
}
