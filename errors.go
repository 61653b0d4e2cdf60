// Package rcs2mac implements the return-link MAC core of an emulated
// DVB-S2/RCS2 satellite system: DAMA allocation, Slotted-Aloha and the
// superframe scheduler that binds them to FIFO-queued traffic.
package rcs2mac

import "errors"

// Configuration errors. Fatal to the block that encounters them; raised
// only during init, never once a block is running.
var (
	ErrMissingParam  = errors.New("required configuration parameter is missing")
	ErrBadValue      = errors.New("configuration value is out of range")
	ErrUnknownModcod = errors.New("modcod id not present in table")
)

// Logon errors. The logon request is rejected and no state changes.
var (
	ErrDuplicateTalId  = errors.New("terminal id already logged on")
	ErrTalIdIsNcc      = errors.New("terminal id is reserved for the NCC")
	ErrUnknownCategory = errors.New("terminal category not found")
)

// Allocation errors. Logged and the terminal/category is skipped for the
// current superframe only; requests are preserved for the next one.
var (
	ErrModcodMismatch = errors.New("terminal cannot decode carrier's modcod")
	ErrCarrierOverflow = errors.New("carrier allocation would exceed its capacity")
	ErrUnknownTerminal = errors.New("terminal id not present in terminal context map")
)

// Transport errors. The offending packet is dropped; the block itself
// keeps running. ErrFifoFull's drop is counted by the scheduler's
// fifo_drop_total probe, fed from fifo.Fifo's own per-period Drop stat
// (see pkg/fifo.GetStatsContext and pkg/scheduler.reportFifoStats).
// ErrUdpShortRead, ErrCounterGap and ErrCrcMismatch belong to the UDP
// sat-carrier transport, which spec.md §1 places outside this core --
// they're declared here for the wire-level vocabulary but have no named
// counter in this package.
var (
	ErrFifoFull     = errors.New("fifo is at capacity")
	ErrFifoEmpty    = errors.New("fifo has no element to pop")
	ErrUdpShortRead = errors.New("short read on sat-carrier transport")
	ErrCounterGap   = errors.New("sequence counter gap detected")
	ErrCrcMismatch  = errors.New("frame crc does not match")
)

// Slotted-Aloha errors.
var (
	ErrSlotCollision      = errors.New("slot has more than one replica")
	ErrMaxRetransmissions = errors.New("packet exceeded its retransmission budget")
	ErrOutOfSlots         = errors.New("no free slot left in this superframe")
)

// Timing errors. Time always advances; these are best-effort-drain signals.
var (
	ErrSuperframeOverrun = errors.New("superframe ran out of wall-clock time before emit")
	ErrStackTimeout      = errors.New("stack level timeout")
	ErrBackwardsSof      = errors.New("start-of-frame number went backwards")
)

// Frame wire errors.
var (
	ErrShortFrame    = errors.New("frame buffer too short for its header")
	ErrUnknownFrame  = errors.New("unknown frame message type")
	ErrPayloadLength = errors.New("payload_length field does not match buffer content")
)
