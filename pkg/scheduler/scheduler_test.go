package scheduler

import (
	"testing"
	"time"

	rcs2mac "github.com/opensand/rcs2mac"
	damapkg "github.com/opensand/rcs2mac/pkg/dama"
	"github.com/opensand/rcs2mac/pkg/fifo"
	"github.com/opensand/rcs2mac/pkg/modcod"
	"github.com/opensand/rcs2mac/pkg/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passthroughHandler is a minimal PacketHandler stub: it fits a whole
// packet if it has room, otherwise splits it byte-for-byte.
type passthroughHandler struct{}

func (passthroughHandler) Name() string { return "passthrough" }

func (passthroughHandler) Encode(packet []byte, maxBytes int) ([]byte, []byte, error) {
	if len(packet) <= maxBytes {
		return packet, nil, nil
	}
	if maxBytes <= 0 {
		return nil, packet, nil
	}
	return packet[:maxBytes], packet[maxBytes:], nil
}

func (passthroughHandler) Decode(burst []byte) ([][]byte, error) { return [][]byte{burst}, nil }
func (passthroughHandler) Source(payload []byte) (uint16, error) { return 0, nil }
func (passthroughHandler) CniExtension([]byte) (uint32, bool)    { return 0, false }

type collectingSink struct {
	frames []*rcs2mac.DvbFrame
}

func (s *collectingSink) Send(f *rcs2mac.DvbFrame) error {
	s.frames = append(s.frames, f)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *terminal.Category, *collectingSink) {
	t.Helper()
	table, err := modcod.NewTable([]modcod.Def{
		{ID: 1, SpectralEfficiencyBpsPerSymbol: 1.0, RequiredEsn0Db: 0, BurstLengthSymbols: 10},
	})
	require.NoError(t, err)
	conv := modcod.NewConverter(table, 1000, 125) // 1 kbps == 1 pktpf, 1 pkt == 125 bytes

	group := &terminal.CarriersGroup{
		CarriersID:       1,
		SymbolRateBauds:  1000 * 1000,
		CarriersCount:    1,
		AllowedModcodIDs: []uint8{1},
		NominalModcodID:  1,
	}
	cat, err := terminal.NewCategory("std", 1, []*terminal.CarriersGroup{group})
	require.NoError(t, err)

	ctrl := damapkg.NewController(conv, damapkg.Params{})
	sink := &collectingSink{}
	sched, err := New(1, conv, ctrl, nil, passthroughHandler{}, sink, 9)
	require.NoError(t, err)
	sched.AddCategory(cat)
	return sched, cat, sink
}

func TestBuildFramesEncodesFifoContentsWithinBudget(t *testing.T) {
	sched, cat, sink := newTestScheduler(t)
	ctx := terminal.NewContext(1, cat.Label, 0, 500, 0)
	ctx.CurrentInputModcodID = 1
	ctx.CarrierID = 1
	require.NoError(t, cat.AddTerminal(ctx))
	ctx.SetRbdcRequest(1) // 1 pktpf == 125 bytes of budget

	set := fifo.NewSet()
	f := fifo.New(0, 10)
	require.NoError(t, f.Push(fifo.Packet{TalID: 1, Payload: make([]byte, 50)}))
	set.Add(f)
	sched.RegisterTerminal(1, set)

	require.NoError(t, sched.Run(nil, time.Time{}))
	require.Len(t, sink.frames, 2)
	assert.Equal(t, rcs2mac.MsgTtp, sink.frames[0].Header.MessageType)
	assert.Equal(t, rcs2mac.MsgDvbRcsFrame, sink.frames[1].Header.MessageType)
	assert.Len(t, sink.frames[1].Payload, 50)
}

func TestCollectRequestsAppliesSacFrame(t *testing.T) {
	sched, cat, _ := newTestScheduler(t)
	ctx := terminal.NewContext(7, cat.Label, 0, 500, 200)
	ctx.CurrentInputModcodID = 1
	ctx.CarrierID = 1
	require.NoError(t, cat.AddTerminal(ctx))
	sched.RegisterTerminal(7, fifo.NewSet())

	sac := &rcs2mac.DvbFrame{
		Header:      rcs2mac.CommonHeader{MessageType: rcs2mac.MsgSac, CniCentibels: rcs2mac.NoCni},
		SacTalID:    7,
		SacRbdcKbps: 42,
		SacVbdcPkt:  13,
	}
	require.NoError(t, sched.CollectRequests([]*rcs2mac.DvbFrame{sac}))
	assert.Equal(t, 42.0, ctx.RbdcRequestKbps)
	assert.Equal(t, uint32(13), ctx.VbdcRequestPkt)
}

func TestEmitSkipsPastDeadlineWithoutBlocking(t *testing.T) {
	sched, _, sink := newTestScheduler(t)
	built := []Built{{Frame: &rcs2mac.DvbFrame{Header: rcs2mac.CommonHeader{MessageType: rcs2mac.MsgDvbRcsFrame}, Payload: []byte("x")}}}

	err := sched.Emit(built, time.Now().Add(-time.Second))
	assert.ErrorIs(t, err, rcs2mac.ErrSuperframeOverrun)
	assert.Empty(t, sink.frames)
}

func TestEmitSkipsEmptyFrames(t *testing.T) {
	sched, _, sink := newTestScheduler(t)
	built := []Built{{Frame: nil, UnderAllocated: true}}
	require.NoError(t, sched.Emit(built, time.Time{}))
	assert.Empty(t, sink.frames)
}
