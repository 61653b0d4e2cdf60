// Package dama implements C9 (DamaCtrl), the return-link allocator: a
// per-superframe RBDC/VBDC/FCA computation across categories and carriers
// that produces a Terminal Time Plan. This is the hardest algorithm in the
// system (spec.md §4.7). Grounded on pkg/pdo/common.go's
// "iterate, validate, accumulate, fall back to logged skip" control flow
// in the teacher repo, generalized to the multi-phase allocation below.
package dama

import (
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/modcod"
	"github.com/opensand/rcs2mac/pkg/probe"
	"github.com/opensand/rcs2mac/pkg/terminal"
)

// Params are the controller-wide DAMA parameters (spec.md §6 Configuration).
type Params struct {
	FcaKbps float64
}

// Controller is C9.
type Controller struct {
	conv   *modcod.Converter
	params Params
	sink   probe.Sink
	log    *logrus.Entry
}

// NewController builds a DAMA controller.
func NewController(conv *modcod.Converter, params Params) *Controller {
	return &Controller{conv: conv, params: params, log: logrus.WithField("block", "dama")}
}

// SetSink attaches the probe sink this controller reports named counters
// and gauges to (spec.md §9 "Probes and statistics"). Left unset, the
// controller runs exactly as before -- reporting is purely additive.
func (c *Controller) SetSink(sink probe.Sink) { c.sink = sink }

// Allocation is one terminal's outcome for one superframe, ready to feed
// the Terminal Time Plan (spec.md §3 TimePlan).
type Allocation struct {
	TalID     uint16
	CarrierID uint8
	ModcodID  uint8
	RbdcPktpf uint32
	VbdcPkt   uint32
	FcaPktpf  uint32
}

// Total is the sum of the three phases for one terminal (spec.md §4.7
// invariant: never exceeds the carrier-modcod max allocation).
func (a Allocation) Total() uint32 { return a.RbdcPktpf + a.VbdcPkt + a.FcaPktpf }

// Run executes the allocation algorithm, in order, for each category, for
// each carrier group in that category (spec.md §4.7). It returns the set
// of per-terminal allocations across all categories.
func (c *Controller) Run(categories []*terminal.Category) []Allocation {
	var out []Allocation
	for _, cat := range categories {
		for _, group := range cat.Groups() {
			out = append(out, c.runGroup(cat, group)...)
		}
	}
	return out
}

func (c *Controller) runGroup(cat *terminal.Category, group *terminal.CarriersGroup) []Allocation {
	log := c.log.WithFields(logrus.Fields{"category": cat.Label, "carrier_id": group.CarriersID})

	// Step A: capacity initialization.
	totalPktpf, err := c.stepA(group)
	if err != nil {
		log.WithError(err).Error("capacity initialization failed, skipping carrier this superframe")
		return nil
	}
	group.ResetCapacity(totalPktpf)
	log.WithField("pktpf", totalPktpf).Debug("carrier capacity initialized")

	terminals, excluded := c.eligibleTerminals(cat, group, log)
	if len(terminals) == 0 {
		return nil
	}

	results := make(map[uint16]*Allocation, len(terminals))
	for _, ctx := range terminals {
		results[ctx.TalID] = &Allocation{TalID: ctx.TalID, CarrierID: group.CarriersID, ModcodID: ctx.CurrentInputModcodID}
	}

	c.stepBRbdc(cat.Label, group, terminals, results, log)
	c.stepCVbdc(group, terminals, results, log)
	c.stepDFca(group, terminals, results, log)

	out := make([]Allocation, 0, len(results)+len(excluded))
	for _, ctx := range terminals {
		a := results[ctx.TalID]
		ctx.RbdcAllocPktpf = a.RbdcPktpf
		ctx.VbdcAllocPkt = a.VbdcPkt
		ctx.FcaAllocPktpf = a.FcaPktpf
		out = append(out, *a)
	}
	return out
}

// stepA converts the carrier's total symbol capacity for one superframe
// into packets-per-superframe using its nominal MODCOD (spec.md §4.7).
func (c *Controller) stepA(group *terminal.CarriersGroup) (uint32, error) {
	superframeSec := float64(c.conv.SuperframeDurationMs()) / 1000
	totalSymbols := uint64(float64(group.SymbolRateBauds) * float64(group.CarriersCount) * superframeSec)
	return c.conv.SymbolsToPktpf(totalSymbols, group.NominalModcodID)
}

// eligibleTerminals returns the terminals assigned to this group that can
// decode its allowed modcods, logging and excluding (but not dropping the
// pending request of) any that can't -- spec.md §4.7 failure mode
// "ModcodMismatch".
func (c *Controller) eligibleTerminals(cat *terminal.Category, group *terminal.CarriersGroup, log *logrus.Entry) (eligible, excluded []*terminal.Context) {
	for _, ctx := range cat.TerminalsOnCarrier(group.CarriersID) {
		if !group.SupportsModcod(ctx.CurrentInputModcodID) {
			log.WithField("tal_id", ctx.TalID).WithField("modcod", ctx.CurrentInputModcodID).
				Warn(rcs2mac.ErrModcodMismatch.Error())
			if c.sink != nil {
				c.sink.Inc("dama_modcod_mismatch_total", prometheus.Labels{"tal_id": strconv.Itoa(int(ctx.TalID))})
			}
			excluded = append(excluded, ctx)
			continue
		}
		eligible = append(eligible, ctx)
	}
	return eligible, excluded
}

// stepBRbdc is spec.md §4.7 step B: fair-share RBDC allocation with credit
// carry-over.
func (c *Controller) stepBRbdc(categoryLabel string, group *terminal.CarriersGroup, terminals []*terminal.Context, out map[uint16]*Allocation, log *logrus.Entry) {
	if group.RemainingCapacity == 0 {
		log.Debug("no remaining capacity for rbdc phase, skipping")
		return
	}

	type req struct {
		ctx *terminal.Context
		pkt uint32
	}
	var reqs []req
	var totalRequest uint32
	for _, ctx := range terminals {
		if !ctx.Supported.Supports(terminal.RequestRBDC) {
			continue
		}
		pkt, _, err := c.conv.KbpsToPktpf(ctx.RbdcRequestKbps, ctx.CurrentInputModcodID)
		if err != nil {
			continue
		}
		reqs = append(reqs, req{ctx: ctx, pkt: pkt})
		totalRequest += pkt
	}
	if len(reqs) == 0 {
		return
	}

	remaining := group.RemainingCapacity
	if totalRequest <= remaining {
		// No contention: every terminal gets its full integer request,
		// fair_share == 1.0, no credit accrues (spec.md §8 scenario S1).
		for _, r := range reqs {
			out[r.ctx.TalID].RbdcPktpf = r.pkt
			r.ctx.RbdcCreditKbps = 0
			remaining -= r.pkt
		}
		group.RemainingCapacity = remaining
		log.WithField("fair_share", 1.0).WithField("total_request_pktpf", totalRequest).
			Debug("rbdc satisfied in full")
		c.reportFairness(categoryLabel, 1.0)
		return
	}

	fairShare := float64(totalRequest) / float64(remaining)
	allocated := uint32(0)
	for _, r := range reqs {
		share := float64(r.pkt) / fairShare
		whole := uint32(share)
		residue := share - float64(whole)
		out[r.ctx.TalID].RbdcPktpf = whole
		allocated += whole

		oneUnitKbps, _ := c.conv.OnePacketKbps(r.ctx.CurrentInputModcodID)
		residueKbps := residue * oneUnitKbps
		r.ctx.AddRbdcCredit(residueKbps, oneUnitKbps)
	}
	remaining -= allocated

	// Award leftover packets to the highest-credit terminals while capacity
	// remains (spec.md §4.7 step B.4).
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ctx.RbdcCreditKbps > reqs[j].ctx.RbdcCreditKbps })
	for remaining > 0 {
		awarded := false
		for _, r := range reqs {
			if remaining == 0 {
				break
			}
			oneUnitKbps, _ := c.conv.OnePacketKbps(r.ctx.CurrentInputModcodID)
			if r.ctx.RbdcCreditKbps < oneUnitKbps || oneUnitKbps <= 0 {
				continue
			}
			if r.ctx.MaxRbdcPktpf > 0 && out[r.ctx.TalID].RbdcPktpf+1 > r.ctx.MaxRbdcPktpf {
				continue
			}
			out[r.ctx.TalID].RbdcPktpf++
			remaining--
			r.ctx.AddRbdcCredit(-oneUnitKbps, oneUnitKbps)
			awarded = true
		}
		if !awarded {
			break
		}
	}

	group.RemainingCapacity = remaining
	log.WithField("fair_share", humanize.FormatFloat("#,###.##", fairShare)).
		WithField("total_request_pktpf", totalRequest).Debug("rbdc allocated with fair-share")
	c.reportFairness(categoryLabel, fairShare)
}

// reportFairness emits the dama_fairness_ratio gauge for one category's
// RBDC pass, supplemented from original_source's dama probe registration
// (SPEC_FULL.md §5). A no-op when no sink is attached.
func (c *Controller) reportFairness(categoryLabel string, fairShare float64) {
	if c.sink == nil {
		return
	}
	probe.DamaFairnessRatio(c.sink, categoryLabel, fairShare)
}

// stepCVbdc is spec.md §4.7 step C: terminals sorted by descending request,
// served until capacity runs out; unserved requests carry to the next
// superframe (spec.md §8 scenario S4).
func (c *Controller) stepCVbdc(group *terminal.CarriersGroup, terminals []*terminal.Context, out map[uint16]*Allocation, log *logrus.Entry) {
	var candidates []*terminal.Context
	for _, ctx := range terminals {
		if ctx.Supported.Supports(terminal.RequestVBDC) && ctx.VbdcRequestPkt > 0 {
			candidates = append(candidates, ctx)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].VbdcRequestPkt > candidates[j].VbdcRequestPkt })

	remaining := group.RemainingCapacity
	for i, ctx := range candidates {
		if remaining == 0 {
			log.WithField("tal_id", ctx.TalID).Info("vbdc request unserved this superframe, carries over")
			continue
		}
		var alloc uint32
		if ctx.VbdcRequestPkt <= remaining {
			alloc = ctx.VbdcRequestPkt
			remaining -= alloc
		} else {
			alloc = remaining
			remaining = 0
			for _, rest := range candidates[i+1:] {
				log.WithField("tal_id", rest.TalID).Info("vbdc request unserved this superframe, carries over")
			}
		}
		out[ctx.TalID].VbdcPkt = alloc
		ctx.VbdcRequestPkt -= alloc
	}
	group.RemainingCapacity = remaining
}

// stepDFca is spec.md §4.7 step D: unrequested free capacity, given to
// terminals sorted ascending by RBDC credit (those least "in credit" get
// it first).
func (c *Controller) stepDFca(group *terminal.CarriersGroup, terminals []*terminal.Context, out map[uint16]*Allocation, log *logrus.Entry) {
	if c.params.FcaKbps == 0 || group.RemainingCapacity == 0 {
		return
	}
	var candidates []*terminal.Context
	for _, ctx := range terminals {
		if ctx.Supported.Supports(terminal.RequestFCA) {
			candidates = append(candidates, ctx)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].RbdcCreditKbps < candidates[j].RbdcCreditKbps })

	remaining := group.RemainingCapacity
	for _, ctx := range candidates {
		if remaining == 0 {
			break
		}
		fcaPktpf, _, err := c.conv.KbpsToPktpf(c.params.FcaKbps, ctx.CurrentInputModcodID)
		if err != nil || fcaPktpf == 0 {
			continue
		}
		if fcaPktpf > remaining {
			fcaPktpf = remaining
		}
		out[ctx.TalID].FcaPktpf = fcaPktpf
		remaining -= fcaPktpf
	}
	group.RemainingCapacity = remaining
	log.WithField("remaining_after_fca", remaining).Debug("fca allocated")
}
