// Package fifo implements C5 (DvbFifo): a thread-safe bounded queue of
// packets with per-period statistics. Grounded on internal/fifo/fifo.go
// (circular buffer with explicit read/write positions) and
// pkg/sync/sync.go (single-mutex-guarded stateful block) in the teacher
// repo, generalized from a byte ring buffer to a queue of packet elements.
package fifo

import (
	"sync"

	rcs2mac "github.com/opensand/rcs2mac"
)

// Packet is one element stored in a DvbFifo.
type Packet struct {
	TalID   uint16
	Payload []byte
	// Cni is an optional per-packet CNI annotation (spec.md §3).
	Cni    int16
	HasCni bool
}

func (p Packet) bytes() int { return len(p.Payload) }

// Stats is a snapshot of a Fifo's per-period counters, taken and reset
// atomically by GetStatsContext (spec.md §4.3).
type Stats struct {
	In   uint32
	Out  uint32
	Drop uint32
}

// Fifo is a bounded FIFO for one QoS priority level. All operations are
// protected by a single mutex; readers must not hold the mutex across
// external allocations (spec.md §4.3).
type Fifo struct {
	mu sync.Mutex

	qos    uint8
	maxPkt uint32

	queue []Packet

	currentBytes uint64

	statsIn   uint32
	statsOut  uint32
	statsDrop uint32
}

// New builds an empty Fifo for the given QoS level, bounded to maxPkt
// packets.
func New(qos uint8, maxPkt uint32) *Fifo {
	return &Fifo{qos: qos, maxPkt: maxPkt}
}

// QoS returns this fifo's priority level.
func (f *Fifo) QoS() uint8 { return f.qos }

// Push enqueues elem at the tail. Fails with ErrFifoFull iff the queue is
// already at max_pkt, in which case drop_pkt is incremented (tail-drop
// overflow policy, spec.md §4.3).
func (f *Fifo) Push(elem Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if uint32(len(f.queue)) >= f.maxPkt {
		f.statsDrop++
		return rcs2mac.ErrFifoFull
	}
	f.queue = append(f.queue, elem)
	f.currentBytes += uint64(elem.bytes())
	f.statsIn++
	return nil
}

// PushFront reinserts a fragment at the head -- used when a packet-handler
// fragment doesn't fit the allocated byte budget and the residue must be
// retried next superframe. It does not increment in-counters (spec.md
// §4.3) and bypasses the max_pkt bound, since it is putting back something
// that was already accounted for.
func (f *Fifo) PushFront(elem Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queue = append([]Packet{elem}, f.queue...)
	f.currentBytes += uint64(elem.bytes())
}

// Pop removes and returns the head element, or ErrFifoEmpty.
func (f *Fifo) Pop() (Packet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return Packet{}, rcs2mac.ErrFifoEmpty
	}
	elem := f.queue[0]
	f.queue = f.queue[1:]
	f.currentBytes -= uint64(elem.bytes())
	f.statsOut++
	return elem, nil
}

// Peek returns the head element without removing it.
func (f *Fifo) Peek() (Packet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return Packet{}, false
	}
	return f.queue[0], true
}

// CurrentPkt returns the current element count, always equal to len(queue)
// (spec.md §8 property 7). Push never takes it above maxPkt; PushFront does
// not check the bound, so it can exceed maxPkt after a PushFront.
func (f *Fifo) CurrentPkt() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint32(len(f.queue))
}

// CurrentBytes returns the sum of payload lengths currently queued.
func (f *Fifo) CurrentBytes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentBytes
}

// MaxPkt returns the configured bound.
func (f *Fifo) MaxPkt() uint32 { return f.maxPkt }

// GetStatsContext returns a snapshot of the per-period counters and
// atomically resets them (spec.md §4.3).
func (f *Fifo) GetStatsContext() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Stats{In: f.statsIn, Out: f.statsOut, Drop: f.statsDrop}
	f.statsIn, f.statsOut, f.statsDrop = 0, 0, 0
	return s
}

// Clear empties the fifo, used on terminal logoff (spec.md §5:
// "a terminal logoff ... clears its FIFO with status TerminalGone").
// It returns the number of packets dropped by the clear.
func (f *Fifo) Clear() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.queue)
	f.queue = nil
	f.currentBytes = 0
	return n
}
