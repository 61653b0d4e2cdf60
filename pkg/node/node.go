// Package node implements the per-block goroutine wiring that runs either
// side of the link: the ST role (Slotted-Aloha transmitter driven by the
// superframe clock) or the GW role (scheduler + DAMA + Slotted-Aloha NCC).
// Grounded on pkg/node/controller.go's NodeProcessor in the teacher repo:
// one goroutine per block, context.Context cancellation, sync.WaitGroup
// join on stop, reimplemented here around C11's SoF fan-out instead of a
// fixed CANopen SYNC period.
package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/aloha"
	"github.com/opensand/rcs2mac/pkg/clock"
	"github.com/opensand/rcs2mac/pkg/logon"
	"github.com/opensand/rcs2mac/pkg/scheduler"
)

// STNode runs one satellite terminal's return-link transmit side: the
// Slotted-Aloha TAL paced by the superframe clock (spec.md §5: "ST has
// IP-QoS, Encap, DvbRcsTal, SatCarrier").
type STNode struct {
	sessionID string
	spotID    uint16
	clk       *clock.Clock
	tal       *aloha.Tal
	sink      rcs2mac.FrameSink
	log       *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSTNode builds an ST-side node. sessionID seeds nothing by itself --
// it's a per-run identity tag used purely for log correlation across
// restarts, distinct from the TAL's own per-packet base_id sequence.
func NewSTNode(talID uint16, spotID uint16, clk *clock.Clock, tal *aloha.Tal, sink rcs2mac.FrameSink) *STNode {
	sessionID := uuid.NewString()
	return &STNode{
		sessionID: sessionID,
		spotID:    spotID,
		clk:       clk,
		tal:       tal,
		sink:      sink,
		log: logrus.WithFields(logrus.Fields{
			"role": "st", "tal_id": talID, "session": sessionID,
		}),
	}
}

// OnSof implements clock.Listener: each start-of-frame, the TAL checks
// timeouts and schedules whatever it has pending (spec.md §4.6).
func (n *STNode) OnSof(sf uint32) {
	if !n.tal.OnSof(sf) {
		return
	}
	if _, err := n.tal.Schedule(sf, n.sink, n.spotID); err != nil {
		n.log.WithError(err).Warn("slotted-aloha schedule failed this superframe")
	}
}

// Start subscribes to the clock and begins processing. Call Stop to end
// it and Wait to join.
func (n *STNode) Start(ctx context.Context) {
	n.clk.Subscribe(clock.ListenerFunc(n.OnSof))
	_, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.log.Info("st node started")
}

// Stop ends this node's participation. The clock itself is a shared
// resource owned by the caller and is not stopped here.
func (n *STNode) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.log.Info("st node stopped")
}

// Wait blocks until any background work started by this node has
// finished. STNode does no background work of its own (it only reacts to
// clock callbacks), so this returns immediately.
func (n *STNode) Wait() { n.wg.Wait() }

// GWNode runs the gateway's return-link receive side: the Slotted-Aloha
// NCC resolving collisions, and the DAMA-driven scheduler building the
// next Terminal Time Plan, both paced by the same superframe clock
// (spec.md §5: "GW mirrors this with a Dama/SlottedAlohaNcc extension").
type GWNode struct {
	sessionID string
	spotID    uint16
	clk       *clock.Clock
	ncc       *aloha.Ncc
	sched     *scheduler.Scheduler
	handler   rcs2mac.PacketHandler
	sink      rcs2mac.FrameSink
	ackCarrierID uint8
	logon     *logon.Handler
	log       *logrus.Entry

	mu          sync.Mutex
	pendingSac  []*rcs2mac.DvbFrame
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewGWNode builds a GW-side node for one spot.
func NewGWNode(spotID uint16, clk *clock.Clock, ncc *aloha.Ncc, sched *scheduler.Scheduler, handler rcs2mac.PacketHandler, sink rcs2mac.FrameSink, ackCarrierID uint8) *GWNode {
	sessionID := uuid.NewString()
	return &GWNode{
		sessionID:    sessionID,
		spotID:       spotID,
		clk:          clk,
		ncc:          ncc,
		sched:        sched,
		handler:      handler,
		sink:         sink,
		ackCarrierID: ackCarrierID,
		log:          logrus.WithFields(logrus.Fields{"role": "gw", "spot_id": spotID, "session": sessionID}),
	}
}

// IngestAlohaFrame feeds one received SlottedAlohaData frame to the NCC
// (spec.md §4.6 step 1). Safe to call concurrently with OnSof.
func (n *GWNode) IngestAlohaFrame(f *rcs2mac.DvbFrame) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ncc.IngestFrame(f)
}

// SetLogonHandler attaches the logon validator this node uses to answer
// LogonReq frames. Left unset, IngestLogon rejects every request.
func (n *GWNode) SetLogonHandler(h *logon.Handler) { n.logon = h }

// IngestLogon decodes a LogonReq frame, validates and applies it
// (spec.md §7 "Logon: DuplicateTalId, TalIdIsNcc, UnknownCategory --
// reject, no state change"), and sends the LogonResp back immediately --
// logon is not gated on the superframe cycle the way data traffic is.
func (n *GWNode) IngestLogon(f *rcs2mac.DvbFrame) error {
	if n.logon == nil {
		return rcs2mac.ErrUnknownFrame
	}
	req, err := logon.DecodeRequest(f.Payload)
	if err != nil {
		return err
	}
	resp := n.logon.Handle(req)
	respFrame := &rcs2mac.DvbFrame{
		Header: rcs2mac.CommonHeader{
			MessageType:  rcs2mac.MsgLogonResp,
			CarrierID:    f.Header.CarrierID,
			SpotID:       n.spotID,
			CniCentibels: rcs2mac.NoCni,
		},
		Payload: resp.Encode(),
	}
	return n.sink.Send(respFrame)
}

// IngestSac queues a received Sac control frame for the next
// CollectRequests phase (spec.md §4.8).
func (n *GWNode) IngestSac(f *rcs2mac.DvbFrame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pendingSac = append(n.pendingSac, f)
}

// OnSof implements clock.Listener: resolve the prior superframe's
// Slotted-Aloha traffic and emit ACKs first (spec.md §5: "ACK frames for a
// received Slotted-Aloha superframe are emitted before capacity allocation
// runs for the next superframe"), then run the scheduler's full cycle.
func (n *GWNode) OnSof(sf uint32) {
	n.mu.Lock()
	res, err := n.ncc.Resolve(sf, n.handler)
	n.mu.Unlock()
	if err != nil {
		n.log.WithError(err).Warn("slotted-aloha resolution failed")
	} else if ack := n.ncc.BuildAckFrame(res.Acks, n.ackCarrierID); ack != nil {
		if err := n.sink.Send(ack); err != nil {
			n.log.WithError(err).Warn("failed to send slotted-aloha ack")
		}
	}

	n.mu.Lock()
	sac := n.pendingSac
	n.pendingSac = nil
	n.mu.Unlock()

	if err := n.sched.Run(sac, time.Time{}); err != nil && !errors.Is(err, rcs2mac.ErrSuperframeOverrun) {
		n.log.WithError(err).Warn("scheduler run failed")
	}
}

// Start subscribes to the clock. Call Stop to end it and Wait to join.
func (n *GWNode) Start(ctx context.Context) {
	n.clk.Subscribe(clock.ListenerFunc(n.OnSof))
	_, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.log.Info("gw node started")
}

// Stop ends this node's participation.
func (n *GWNode) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.log.Info("gw node stopped")
}

// Wait blocks until any background work started by this node has
// finished.
func (n *GWNode) Wait() { n.wg.Wait() }
