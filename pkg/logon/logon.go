// Package logon implements the logon handshake: validating a terminal's
// LogonReq against the three reject-no-state-change edge cases (spec.md §7
// "Logon: DuplicateTalId, TalIdIsNcc, UnknownCategory"), then creating its
// TerminalContext and FIFO set and wiring both into the scheduler. Grounded
// on pkg/sdo/server.go's request-validate-then-commit shape in the teacher
// repo: every rejection path returns before any state is mutated.
package logon

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/opensand/rcs2mac/pkg/fifo"
	"github.com/opensand/rcs2mac/pkg/scheduler"
	"github.com/opensand/rcs2mac/pkg/terminal"
)

// Request is the decoded content of a LogonReq frame (spec.md leaves the
// wire format for logon frames unspecified; this is this repository's
// encoding of it, carried in DvbFrame.Payload).
type Request struct {
	TalID         uint16
	CategoryLabel string
	CraKbps       float64
	MaxRbdcKbps   float64
	MaxVbdcPkt    uint32
}

// Encode serializes a Request for a LogonReq frame's payload: u16 tal_id,
// u8 label length, label bytes, u32 cra_kbps*1000, u32 max_rbdc_kbps*1000,
// u32 max_vbdc_pkt (fixed-point millikbps to stay integer on the wire).
func (r Request) Encode() []byte {
	label := []byte(r.CategoryLabel)
	out := make([]byte, 2+1+len(label)+4+4+4)
	binary.LittleEndian.PutUint16(out, r.TalID)
	out[2] = uint8(len(label))
	copy(out[3:], label)
	off := 3 + len(label)
	binary.LittleEndian.PutUint32(out[off:], uint32(r.CraKbps*1000))
	binary.LittleEndian.PutUint32(out[off+4:], uint32(r.MaxRbdcKbps*1000))
	binary.LittleEndian.PutUint32(out[off+8:], r.MaxVbdcPkt)
	return out
}

// DecodeRequest parses a LogonReq frame's payload.
func DecodeRequest(payload []byte) (Request, error) {
	if len(payload) < 3 {
		return Request{}, rcs2mac.ErrShortFrame
	}
	talID := binary.LittleEndian.Uint16(payload)
	labelLen := int(payload[2])
	if len(payload) < 3+labelLen+12 {
		return Request{}, rcs2mac.ErrShortFrame
	}
	label := string(payload[3 : 3+labelLen])
	off := 3 + labelLen
	return Request{
		TalID:         talID,
		CategoryLabel: label,
		CraKbps:       float64(binary.LittleEndian.Uint32(payload[off:])) / 1000,
		MaxRbdcKbps:   float64(binary.LittleEndian.Uint32(payload[off+4:])) / 1000,
		MaxVbdcPkt:    binary.LittleEndian.Uint32(payload[off+8:]),
	}, nil
}

// Response is the decoded content of a LogonResp frame.
type Response struct {
	TalID    uint16
	Accepted bool
	Reason   string
}

// Encode serializes a Response: u16 tal_id, u8 accepted, u8 reason length,
// reason bytes.
func (r Response) Encode() []byte {
	reason := []byte(r.Reason)
	out := make([]byte, 2+1+1+len(reason))
	binary.LittleEndian.PutUint16(out, r.TalID)
	if r.Accepted {
		out[2] = 1
	}
	out[3] = uint8(len(reason))
	copy(out[4:], reason)
	return out
}

// DecodeResponse parses a LogonResp frame's payload.
func DecodeResponse(payload []byte) (Response, error) {
	if len(payload) < 4 {
		return Response{}, rcs2mac.ErrShortFrame
	}
	reasonLen := int(payload[3])
	if len(payload) < 4+reasonLen {
		return Response{}, rcs2mac.ErrShortFrame
	}
	return Response{
		TalID:    binary.LittleEndian.Uint16(payload),
		Accepted: payload[2] == 1,
		Reason:   string(payload[4 : 4+reasonLen]),
	}, nil
}

// Config holds the NCC-reserved tal id and the default FIFO shape handed to
// every newly admitted terminal (spec.md leaves per-qos FIFO sizing to
// configuration; one best-effort queue is the minimum viable shape).
type Config struct {
	NccTalID      uint16
	DefaultQos    uint8
	DefaultMaxPkt uint32
}

// Handler validates and applies logon/logoff requests against a fixed set
// of categories, registering admitted terminals with the scheduler.
type Handler struct {
	cfg        Config
	categories map[string]*terminal.Category
	sched      *scheduler.Scheduler
	log        *logrus.Entry
}

// NewHandler builds a logon Handler over the given categories, keyed by
// label.
func NewHandler(cfg Config, categories []*terminal.Category, sched *scheduler.Scheduler) *Handler {
	byLabel := make(map[string]*terminal.Category, len(categories))
	for _, c := range categories {
		byLabel[c.Label] = c
	}
	return &Handler{
		cfg:        cfg,
		categories: byLabel,
		sched:      sched,
		log:        logrus.WithField("block", "logon"),
	}
}

// Handle validates req against the three reject-no-state-change edge cases
// (spec.md §7), and on success creates the terminal's Context and FIFO set
// and registers both with the scheduler before returning an accepted
// Response. Any rejection leaves no state changed (category membership,
// scheduler FIFOs): the checks run fully before the first mutation.
func (h *Handler) Handle(req Request) Response {
	if req.TalID == h.cfg.NccTalID {
		h.log.WithField("tal_id", req.TalID).Warn(rcs2mac.ErrTalIdIsNcc.Error())
		return Response{TalID: req.TalID, Accepted: false, Reason: rcs2mac.ErrTalIdIsNcc.Error()}
	}
	cat, ok := h.categories[req.CategoryLabel]
	if !ok {
		h.log.WithField("tal_id", req.TalID).WithField("category", req.CategoryLabel).
			Warn(rcs2mac.ErrUnknownCategory.Error())
		return Response{TalID: req.TalID, Accepted: false, Reason: rcs2mac.ErrUnknownCategory.Error()}
	}
	if _, exists := cat.Terminal(req.TalID); exists {
		h.log.WithField("tal_id", req.TalID).Warn(rcs2mac.ErrDuplicateTalId.Error())
		return Response{TalID: req.TalID, Accepted: false, Reason: rcs2mac.ErrDuplicateTalId.Error()}
	}

	ctx := terminal.NewContext(req.TalID, cat.Label, req.CraKbps, req.MaxRbdcKbps, req.MaxVbdcPkt)
	if err := cat.AddTerminal(ctx); err != nil {
		// Invariant already checked above; this would only fire on a
		// concurrent logon racing this one, treated as a duplicate.
		return Response{TalID: req.TalID, Accepted: false, Reason: err.Error()}
	}

	set := fifo.NewSet()
	set.Add(fifo.New(h.cfg.DefaultQos, h.cfg.DefaultMaxPkt))
	h.sched.RegisterTerminal(req.TalID, set)

	h.log.WithField("tal_id", req.TalID).WithField("category", req.CategoryLabel).Info("terminal admitted")
	return Response{TalID: req.TalID, Accepted: true}
}

// Logoff removes a terminal's Context and FIFOs from its category and the
// scheduler (spec.md §6 "Lifecycle": "TerminalContext is created on logon,
// destroyed on logoff").
func (h *Handler) Logoff(talID uint16, categoryLabel string) error {
	cat, ok := h.categories[categoryLabel]
	if !ok {
		return fmt.Errorf("%w: %s", rcs2mac.ErrUnknownCategory, categoryLabel)
	}
	cat.RemoveTerminal(talID)
	h.sched.RemoveTerminal(talID)
	return nil
}
