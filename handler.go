package rcs2mac

// PacketHandler is the downstream IP/LAN adaptation capability consumed by
// the scheduler and the Slotted-Aloha transmitter (spec.md §6). Its
// implementation (GSE/RLE/ROHC encapsulation) is deliberately out of scope
// of this repository; only this interface is.
type PacketHandler interface {
	// Name identifies the encapsulation scheme, used only for logging.
	Name() string
	// Encode fits as much of packet as possible into maxBytes. If the whole
	// packet does not fit, it is fragmented: the returned bytes are the
	// head fragment and residue is the remainder, to be pushed back onto
	// the FIFO with PushFront. residue is nil when the packet fit whole.
	Encode(packet []byte, maxBytes int) (encoded []byte, residue []byte, err error)
	// Decode splits a received byte burst back into individual network
	// packets.
	Decode(burst []byte) ([][]byte, error)
	// Source extracts the originating terminal id from a raw payload.
	Source(payload []byte) (talID uint16, err error)
	// CniExtension extracts an opaque CNI sample carried in a packet's
	// header extension, if present (spec.md §6: "deencodeCniExt").
	CniExtension(packet []byte) (cni uint32, ok bool)
}

// MessageKind tags what an UpstreamQueue message carries, per spec.md §6.
type MessageKind uint8

const (
	KindDecapData MessageKind = iota
	KindSig
	KindLinkUp
)

// UpstreamQueue is the non-blocking contract a block uses to hand a
// decapsulated burst, a signalling frame, or a link-state change to its
// downstream consumer. Enqueue must never block the scheduler path
// (spec.md §6).
type UpstreamQueue interface {
	Enqueue(kind MessageKind, payload any) error
}

// FrameSink is where a block places outgoing DvbFrames for transport.
// The actual UDP sat-carrier delivery is an external collaborator
// (spec.md §1); this is the seam the core writes to.
type FrameSink interface {
	Send(frame *DvbFrame) error
}

// FrameSinkFunc adapts a plain function to a FrameSink.
type FrameSinkFunc func(frame *DvbFrame) error

func (f FrameSinkFunc) Send(frame *DvbFrame) error { return f(frame) }
