// Package scheduler implements C10 (ReturnScheduler): the GW-side
// per-superframe state machine that ties the MODCOD table, terminal
// contexts, FIFOs, the DAMA controller and the packet handler together
// into a Terminal Time Plan's worth of outgoing frames. Grounded on
// pkg/node/controller.go's main-loop state transitions and
// pkg/pdo/tpdo.go's "gather mapped data, fit into budget, emit frame"
// assembly flow in the teacher repo, generalized to the
// Idle->CollectRequests->RunDama->BuildFrames->Emit cycle of spec.md §4.8.
package scheduler

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/dama"
	"github.com/opensand/rcs2mac/pkg/fifo"
	"github.com/opensand/rcs2mac/pkg/fmtsim"
	"github.com/opensand/rcs2mac/pkg/modcod"
	"github.com/opensand/rcs2mac/pkg/probe"
	"github.com/opensand/rcs2mac/pkg/terminal"
)

// OverflowThreshold is the number of consecutive superframes a terminal's
// FIFO must report drops before its traffic becomes eligible for the
// zstd payload-shrink hook.
const OverflowThreshold = 3

// Scheduler is C10.
type Scheduler struct {
	spotID     uint16
	categories []*terminal.Category
	fifos      map[uint16]*fifo.Set // tal id -> per-qos fifo set
	overflow   map[uint16]int       // tal id -> consecutive overflowing superframes

	conv    *modcod.Converter
	dama    *dama.Controller
	sim     *fmtsim.Simulation
	handler rcs2mac.PacketHandler
	sink    rcs2mac.FrameSink
	shrink  *shrinker

	dataOutCarrierID uint8
	probeSink        probe.Sink
	log              *logrus.Entry
}

// New builds a GW-side scheduler for one spot. It always builds the zstd
// shrinker; the hook only engages for a terminal whose FIFO has dropped
// packets for OverflowThreshold consecutive superframes.
func New(spotID uint16, conv *modcod.Converter, ctrl *dama.Controller, sim *fmtsim.Simulation, handler rcs2mac.PacketHandler, sink rcs2mac.FrameSink, dataOutCarrierID uint8) (*Scheduler, error) {
	shrink, err := newShrinker()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		spotID:           spotID,
		fifos:            make(map[uint16]*fifo.Set),
		overflow:         make(map[uint16]int),
		conv:             conv,
		dama:             ctrl,
		sim:              sim,
		handler:          handler,
		sink:             sink,
		shrink:           shrink,
		dataOutCarrierID: dataOutCarrierID,
		log:              logrus.WithFields(logrus.Fields{"block": "scheduler", "spot_id": spotID}),
	}, nil
}

// SetSink attaches the probe sink this scheduler reports named counters
// and gauges to (spec.md §9 "Probes and statistics"). Left unset, the
// scheduler runs exactly as before -- reporting is purely additive.
func (s *Scheduler) SetSink(sink probe.Sink) { s.probeSink = sink }

// AddCategory registers a category this scheduler allocates for.
func (s *Scheduler) AddCategory(cat *terminal.Category) { s.categories = append(s.categories, cat) }

// RegisterTerminal attaches a per-qos FIFO set to a terminal; must be
// called once on logon.
func (s *Scheduler) RegisterTerminal(talID uint16, fifos *fifo.Set) {
	s.fifos[talID] = fifos
}

// RemoveTerminal drops a terminal's FIFOs on logoff (TerminalGone, spec.md
// §5 "Cancellation").
func (s *Scheduler) RemoveTerminal(talID uint16) {
	if set, ok := s.fifos[talID]; ok {
		for _, f := range set.Ordered() {
			f.Clear()
		}
	}
	delete(s.fifos, talID)
	delete(s.overflow, talID)
}

// CollectRequests is the scheduler's first phase: drain Sac control
// frames into terminal contexts, and apply any CNI override they carry to
// C12 (spec.md §4.8).
func (s *Scheduler) CollectRequests(sacFrames []*rcs2mac.DvbFrame) error {
	for _, f := range sacFrames {
		if f.Header.MessageType != rcs2mac.MsgSac {
			continue
		}
		ctx, ok := s.findTerminal(f.SacTalID)
		if !ok {
			s.log.WithField("tal_id", f.SacTalID).Warn(rcs2mac.ErrUnknownTerminal.Error())
			if s.probeSink != nil {
				s.probeSink.Inc("scheduler_unknown_terminal_total", prometheus.Labels{"tal_id": strconv.Itoa(int(f.SacTalID))})
			}
			continue
		}
		ctx.SetRbdcRequest(float64(f.SacRbdcKbps))
		ctx.SetVbdcRequest(f.SacVbdcPkt)
		if f.Header.CniCentibels != rcs2mac.NoCni && s.sim != nil {
			s.sim.RequireCni(f.SacTalID, float32(f.Header.CniCentibels)/10)
		}
	}
	if s.sim != nil {
		s.sim.Tick()
		for _, cat := range s.categories {
			for _, ctx := range cat.Terminals() {
				if id, ok := s.sim.CurrentModcodID(ctx.TalID); ok {
					ctx.CurrentInputModcodID = id
				}
			}
		}
	}
	return nil
}

func (s *Scheduler) findTerminal(talID uint16) (*terminal.Context, bool) {
	for _, cat := range s.categories {
		if ctx, ok := cat.Terminal(talID); ok {
			return ctx, true
		}
	}
	return nil, false
}

// RunDama is the scheduler's second phase: invoke C9 to obtain the
// Terminal Time Plan for this superframe (spec.md §4.8).
func (s *Scheduler) RunDama() []dama.Allocation {
	return s.dama.Run(s.categories)
}

// Built is one terminal's assembled outgoing frame plus bookkeeping for
// logging (spec.md §4.8 "BuildFrames").
type Built struct {
	Frame          *rcs2mac.DvbFrame
	UnderAllocated bool
}

// BuildFrames is the scheduler's third phase: for each allocated terminal,
// pop packets from its FIFOs in QoS order, fit them into the allocated
// byte budget via the packet handler, and assemble one DvbRcsFrame
// (spec.md §4.8).
func (s *Scheduler) BuildFrames(allocations []dama.Allocation) []Built {
	out := make([]Built, 0, len(allocations))
	for _, alloc := range allocations {
		out = append(out, s.buildOne(alloc))
	}
	return out
}

func (s *Scheduler) buildOne(alloc dama.Allocation) Built {
	log := s.log.WithField("tal_id", alloc.TalID)
	budgetKbits, err := s.conv.PktToKbits(alloc.Total(), alloc.ModcodID)
	if err != nil {
		log.WithError(err).Warn("cannot size byte budget for allocation, skipping")
		return Built{UnderAllocated: true}
	}
	remainingBytes := int(budgetKbits * 1000 / 8)

	set, ok := s.fifos[alloc.TalID]
	if !ok {
		return Built{UnderAllocated: remainingBytes > 0}
	}
	defer s.reportFifoStats(alloc.TalID, set)

	if remainingBytes <= 0 {
		return Built{UnderAllocated: true}
	}

	useShrink := s.overflow[alloc.TalID] >= OverflowThreshold

	var payload []byte
	for _, f := range set.Ordered() {
		for remainingBytes > 0 {
			pkt, err := f.Pop()
			if err != nil {
				break
			}
			body := pkt.Payload
			if useShrink {
				body = s.shrink.shrink(body)
			}
			encoded, residue, err := s.handler.Encode(body, remainingBytes)
			if err != nil {
				log.WithError(err).Warn("packet handler failed to encode, dropping packet")
				continue
			}
			payload = append(payload, encoded...)
			remainingBytes -= len(encoded)
			if residue != nil {
				f.PushFront(fifo.Packet{TalID: pkt.TalID, Payload: residue, Cni: pkt.Cni, HasCni: pkt.HasCni})
				break
			}
		}
	}

	// Byte budget still unspent after every FIFO ran dry: the remaining
	// slots are wasted this superframe, not reassigned (spec.md §4.8 edge
	// case "UnderAllocated").
	underAllocated := remainingBytes > 0

	if underAllocated {
		log.WithField("remaining_bytes", humanize.Bytes(uint64(remainingBytes))).
			Info(underAllocatedMsg)
	}

	return Built{
		Frame: &rcs2mac.DvbFrame{
			Header: rcs2mac.CommonHeader{
				MessageType: rcs2mac.MsgDvbRcsFrame,
				CarrierID:   s.dataOutCarrierID,
				SpotID:      s.spotID,
			},
			Payload: payload,
		},
		UnderAllocated: underAllocated,
	}
}

const underAllocatedMsg = "fifo drained before allocation, remaining slots wasted"

// reportFifoStats reads and resets each of a terminal's fifo.Stats for the
// superframe just processed (spec.md §4.3 "GetStatsContext"), feeds
// whether any dropped a packet into NoteDrop so the zstd shrink hook in
// shrink.go actually tracks real overflow, and -- when a probe sink is
// attached -- reports fifo_current_pkt per qos and fifo_drop_total
// (errors.go's "a named counter is incremented" for ErrFifoFull).
func (s *Scheduler) reportFifoStats(talID uint16, set *fifo.Set) {
	var dropped uint32
	for _, f := range set.Ordered() {
		st := f.GetStatsContext()
		dropped += st.Drop
		if s.probeSink != nil {
			labels := prometheus.Labels{"tal_id": strconv.Itoa(int(talID)), "qos": strconv.Itoa(int(f.QoS()))}
			s.probeSink.Set("fifo_current_pkt", labels, float64(f.CurrentPkt()))
		}
	}
	s.NoteDrop(talID, dropped > 0)
	if s.probeSink != nil && dropped > 0 {
		s.probeSink.Inc("fifo_drop_total", prometheus.Labels{"tal_id": strconv.Itoa(int(talID))})
	}
}

// NoteDrop records that a terminal's FIFO dropped a packet this
// superframe, accumulating toward the shrink-hook threshold (spec.md
// §4.8's zstd shrink hook in shrink.go); called from reportFifoStats once
// per superframe, after reading fifo.Stats.
func (s *Scheduler) NoteDrop(talID uint16, dropped bool) {
	if dropped {
		s.overflow[talID]++
	} else {
		s.overflow[talID] = 0
	}
}

// Emit is the scheduler's fourth phase: hand built frames to the sink. If
// the deadline has already passed, Emit is skipped entirely and
// SuperframeOverrun is logged instead of blocking (spec.md §4.8 edge
// case).
func (s *Scheduler) Emit(built []Built, deadline time.Time) error {
	if !deadline.IsZero() && time.Now().After(deadline) {
		s.log.Warn(rcs2mac.ErrSuperframeOverrun.Error())
		if s.probeSink != nil {
			s.probeSink.Inc("scheduler_superframe_overrun_total", prometheus.Labels{"spot_id": strconv.Itoa(int(s.spotID))})
		}
		return rcs2mac.ErrSuperframeOverrun
	}
	for _, b := range built {
		if b.Frame == nil || len(b.Frame.Payload) == 0 {
			continue
		}
		if err := s.sink.Send(b.Frame); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one full superframe cycle: CollectRequests, RunDama,
// BuildFrames, Emit (spec.md §4.8). A SuperframeOverrun at Emit is not
// fatal -- the caller proceeds to the next superframe regardless.
func (s *Scheduler) Run(sacFrames []*rcs2mac.DvbFrame, deadline time.Time) error {
	if err := s.CollectRequests(sacFrames); err != nil {
		return err
	}
	allocations := s.RunDama()
	built := s.BuildFrames(allocations)
	if ttp := s.buildTTPFrame(allocations); ttp != nil {
		built = append([]Built{{Frame: ttp}}, built...)
	}
	if err := s.Emit(built, deadline); err != nil {
		return err
	}
	return nil
}
