// Package encap provides a minimal rcs2mac.PacketHandler implementation
// used to run the cmd/gwcore and cmd/stcore binaries end to end. The real
// GSE/RLE/ROHC encapsulation stack is explicitly out of scope (spec.md's
// Non-goals); this handler only delimits packet boundaries inside a burst
// with a length prefix, enough for the scheduler and the Slotted-Aloha
// blocks to exercise a concrete PacketHandler.
package encap

import (
	"encoding/binary"
	"fmt"

	rcs2mac "github.com/opensand/rcs2mac"
)

// headerLen is the length-prefix size in bytes.
const headerLen = 2

// maxFragmentPayload is the largest payload representable by the 2-byte
// length prefix.
const maxFragmentPayload = 1<<16 - 1

// LengthPrefixed is a PacketHandler that frames packets with a big-endian
// uint16 length prefix, fragmenting across the handler's own headers when a
// packet doesn't fit the budget it's given.
type LengthPrefixed struct{}

func (LengthPrefixed) Name() string { return "len-prefix" }

// Encode fits as much of packet into maxBytes as the length-prefix framing
// allows. If the whole packet (plus its header) fits, it is returned whole
// with a nil residue. Otherwise the packet is split at a byte boundary and
// the remainder is returned as residue, itself unframed raw payload so a
// later call re-frames it.
func (h LengthPrefixed) Encode(packet []byte, maxBytes int) ([]byte, []byte, error) {
	if maxBytes < headerLen+1 {
		return nil, packet, nil
	}
	if len(packet) > maxFragmentPayload {
		return nil, nil, fmt.Errorf("%w: packet of %d bytes exceeds length-prefix capacity", rcs2mac.ErrBadValue, len(packet))
	}
	room := maxBytes - headerLen
	if room >= len(packet) {
		out := make([]byte, headerLen+len(packet))
		binary.BigEndian.PutUint16(out, uint16(len(packet)))
		copy(out[headerLen:], packet)
		return out, nil, nil
	}
	out := make([]byte, headerLen+room)
	binary.BigEndian.PutUint16(out, uint16(room))
	copy(out[headerLen:], packet[:room])
	return out, packet[room:], nil
}

// Decode splits a received burst back into the packets Encode framed.
func (h LengthPrefixed) Decode(burst []byte) ([][]byte, error) {
	var out [][]byte
	for len(burst) > 0 {
		if len(burst) < headerLen {
			return nil, rcs2mac.ErrShortFrame
		}
		n := int(binary.BigEndian.Uint16(burst))
		burst = burst[headerLen:]
		if len(burst) < n {
			return nil, rcs2mac.ErrShortFrame
		}
		out = append(out, burst[:n])
		burst = burst[n:]
	}
	return out, nil
}

// Source is not implemented by this minimal handler: terminal identity for
// Slotted-Aloha and TTP traffic is carried by the DvbFrame header fields
// (SaTalID, SacTalID), not inside the encapsulated payload, so callers
// should not need this for the flows this repository drives.
func (h LengthPrefixed) Source([]byte) (uint16, error) {
	return 0, rcs2mac.ErrUnknownFrame
}

// CniExtension is not carried by this minimal framing; CNI reporting goes
// through DvbFrame's CniCentibels header field instead (spec.md §4.4).
func (h LengthPrefixed) CniExtension([]byte) (uint32, bool) {
	return 0, false
}
