package aloha

import (
	"math/rand"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/backoff"
	"github.com/opensand/rcs2mac/pkg/probe"
)

// TalConfig holds the static Slotted-Aloha parameters for one terminal
// (spec.md §6 "Configuration").
type TalConfig struct {
	TalID                uint16
	NbReplicas           uint8
	NbMaxPacketsPerFrame  int
	NbMaxRetransmissions uint8
	TimeoutSuperframes   uint32
	SlotsPerSuperframe   uint16
	CarrierID            uint8
	Seed                 int64
}

// Tal is C7: the ST-side Slotted-Aloha transmitter.
type Tal struct {
	cfg     TalConfig
	backoff backoff.Algorithm
	rng     *rand.Rand
	log     *logrus.Entry

	backoffDelay uint32
	nextBaseID   map[uint8]uint64

	pending               []*Packet // logical packets awaiting first transmission
	retransmissionPackets []*Packet
	awaitingAck           map[LogicalID]*Packet

	sink probe.Sink
}

// NewTal builds a Tal for one terminal, using the given backoff algorithm.
func NewTal(cfg TalConfig, bo backoff.Algorithm) *Tal {
	return &Tal{
		cfg:         cfg,
		backoff:     bo,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		log:         logrus.WithFields(logrus.Fields{"block": "aloha-tal", "tal_id": cfg.TalID}),
		nextBaseID:  make(map[uint8]uint64),
		awaitingAck: make(map[LogicalID]*Packet),
	}
}

// SetSink attaches the probe sink this Tal reports named counters to
// (spec.md §9 "Probes and statistics"). Left unset, Tal runs exactly as
// before -- reporting is purely additive.
func (t *Tal) SetSink(sink probe.Sink) { t.sink = sink }

// OnEncapPacket assigns a monotone per-terminal per-qos base id and stores
// the packet as pending (spec.md §4.5).
func (t *Tal) OnEncapPacket(qos uint8, payload []byte, sf uint32) *Packet {
	baseID := t.nextBaseID[qos]
	t.nextBaseID[qos] = baseID + 1
	pkt := &Packet{
		TalID:               t.cfg.TalID,
		Qos:                 qos,
		BaseID:              baseID,
		NbReplicas:          t.cfg.NbReplicas,
		TimestampSuperframe: sf,
		Payload:             payload,
	}
	t.pending = append(t.pending, pkt)
	return pkt
}

// OnSof advances the backoff counter. It returns true when there are
// pending packets and the backoff delay has elapsed, meaning Schedule
// should be called this superframe (spec.md §4.5).
func (t *Tal) OnSof(sf uint32) bool {
	t.checkTimeouts(sf)
	if t.backoffDelay > 0 {
		t.backoffDelay--
	}
	return t.backoffDelay == 0 && (len(t.pending) > 0 || len(t.retransmissionPackets) > 0)
}

// PendingCount returns the number of logical packets waiting to be sent or
// retried, for diagnostics and tests.
func (t *Tal) PendingCount() int {
	return len(t.pending) + len(t.retransmissionPackets)
}

// Schedule picks up to NbMaxPacketsPerFrame pending packets (retransmissions
// first), allocates NbReplicas unique random slots per packet from the
// carrier's slot set, and emits SlottedAlohaData frames to sink. Slots are
// drawn from a PRNG seeded per superframe, per spec.md §4.5, for
// reproducibility across runs with identical seeds. If the slot set is
// exhausted before all picked packets are placed, the remainder spills back
// to retransmissionPackets (spec.md §4.5's tie-break rule).
func (t *Tal) Schedule(sf uint32, sink rcs2mac.FrameSink, spotID uint16) (emitted int, err error) {
	slotRng := rand.New(rand.NewSource(t.cfg.Seed ^ int64(sf)))
	used := make(map[uint16]struct{})

	toSend := t.pickBatch()
	var spilled []*Packet
	for _, pkt := range toSend {
		slots, ok := t.drawSlots(slotRng, used, int(pkt.NbReplicas))
		if !ok {
			spilled = append(spilled, pkt)
			continue
		}
		for i, slot := range slots {
			frame := &rcs2mac.DvbFrame{
				Header: rcs2mac.CommonHeader{
					MessageType: rcs2mac.MsgSlottedAlohaData,
					CarrierID:   t.cfg.CarrierID,
					SpotID:      spotID,
				},
				SaTalID:      t.cfg.TalID,
				SaBaseID:     pkt.BaseID,
				SaReplicaID:  uint8(i),
				SaNbReplicas: pkt.NbReplicas,
				SaSlotID:     slot,
				Payload:      pkt.Payload,
			}
			if sendErr := sink.Send(frame); sendErr != nil {
				err = sendErr
				continue
			}
			emitted++
		}
		t.awaitingAck[LogicalID{TalID: pkt.TalID, BaseID: pkt.BaseID}] = pkt
	}
	t.retransmissionPackets = append(spilled, t.retransmissionPackets...)
	if len(spilled) > 0 {
		t.log.WithField("spilled", len(spilled)).Warn(rcs2mac.ErrOutOfSlots.Error())
		if t.sink != nil {
			t.sink.Inc("aloha_out_of_slots_total", prometheus.Labels{"tal_id": strconv.Itoa(int(t.cfg.TalID))})
		}
	}
	return emitted, err
}

// pickBatch selects min(NbMaxPacketsPerFrame, total pending) packets,
// retransmissions first, and removes them from the waiting lists.
func (t *Tal) pickBatch() []*Packet {
	budget := t.cfg.NbMaxPacketsPerFrame
	if budget <= 0 {
		budget = len(t.pending) + len(t.retransmissionPackets)
	}
	var out []*Packet
	for budget > 0 && len(t.retransmissionPackets) > 0 {
		out = append(out, t.retransmissionPackets[0])
		t.retransmissionPackets = t.retransmissionPackets[1:]
		budget--
	}
	for budget > 0 && len(t.pending) > 0 {
		out = append(out, t.pending[0])
		t.pending = t.pending[1:]
		budget--
	}
	return out
}

// drawSlots draws n distinct slot ids not already in used from
// [0, SlotsPerSuperframe), marking them used. Returns ok=false if fewer
// than n free slots remain.
func (t *Tal) drawSlots(rng *rand.Rand, used map[uint16]struct{}, n int) ([]uint16, bool) {
	if int(t.cfg.SlotsPerSuperframe)-len(used) < n {
		return nil, false
	}
	out := make([]uint16, 0, n)
	for len(out) < n {
		candidate := uint16(rng.Int63n(int64(t.cfg.SlotsPerSuperframe)))
		if _, taken := used[candidate]; taken {
			continue
		}
		used[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out, true
}

// OnRcvFrame processes a received ack/control frame. ACKs clear the
// matching pending entries and register success with the backoff
// algorithm (spec.md §4.5).
func (t *Tal) OnRcvFrame(frame *rcs2mac.DvbFrame) {
	if frame.Header.MessageType != rcs2mac.MsgSlottedAlohaAck {
		return
	}
	for _, ack := range frame.SaAcks {
		if ack.TalID != t.cfg.TalID {
			continue
		}
		id := LogicalID{TalID: ack.TalID, BaseID: ack.BaseID}
		if _, ok := t.awaitingAck[id]; ok {
			delete(t.awaitingAck, id)
			t.backoffDelay = t.backoff.SetOk()
		}
	}
}

// checkTimeouts moves packets that have waited longer than
// TimeoutSuperframes without an ACK into retransmissionPackets, or drops
// them with MaxRetransmissions if they have exhausted their retry budget
// (spec.md §4.5, testable property 6: no packet transmitted more than
// NbMaxRetransmissions+1 times).
func (t *Tal) checkTimeouts(currentSF uint32) {
	for id, pkt := range t.awaitingAck {
		if currentSF < pkt.TimestampSuperframe+t.cfg.TimeoutSuperframes {
			continue
		}
		delete(t.awaitingAck, id)
		pkt.retransmissions++
		if pkt.retransmissions > t.cfg.NbMaxRetransmissions {
			t.log.WithFields(logrus.Fields{"base_id": pkt.BaseID}).Warn(rcs2mac.ErrMaxRetransmissions.Error())
			if t.sink != nil {
				t.sink.Inc("aloha_max_retransmissions_total", prometheus.Labels{"tal_id": strconv.Itoa(int(t.cfg.TalID))})
			}
			continue
		}
		pkt.TimestampSuperframe = currentSF
		t.retransmissionPackets = append(t.retransmissionPackets, pkt)
		t.backoffDelay = t.backoff.SetNok()
	}
}

// Logoff clears all pending and in-flight state for this terminal
// (spec.md §5: a logoff cancels all pending retransmissions).
func (t *Tal) Logoff() (cleared int) {
	cleared = len(t.pending) + len(t.retransmissionPackets) + len(t.awaitingAck)
	t.pending = nil
	t.retransmissionPackets = nil
	t.awaitingAck = make(map[LogicalID]*Packet)
	return cleared
}
