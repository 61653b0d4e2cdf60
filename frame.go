package rcs2mac

import (
	"encoding/binary"
	"fmt"
)

// MessageType tags the variant carried by a DvbFrame, mirroring the
// teacher's tagged CAN frame dispatch (pkg/can/bus.go's Frame + explicit
// match in callers) rather than a type hierarchy.
type MessageType uint8

const (
	MsgDvbRcsFrame MessageType = iota + 1
	MsgBBFrame
	MsgSof
	MsgLogonReq
	MsgLogonResp
	MsgSac
	MsgTtp
	MsgCsc
	MsgSlottedAlohaData
	MsgSlottedAlohaAck
)

func (m MessageType) String() string {
	switch m {
	case MsgDvbRcsFrame:
		return "DvbRcsFrame"
	case MsgBBFrame:
		return "BBFrame"
	case MsgSof:
		return "Sof"
	case MsgLogonReq:
		return "LogonReq"
	case MsgLogonResp:
		return "LogonResp"
	case MsgSac:
		return "Sac"
	case MsgTtp:
		return "Ttp"
	case MsgCsc:
		return "Csc"
	case MsgSlottedAlohaData:
		return "SlottedAlohaData"
	case MsgSlottedAlohaAck:
		return "SlottedAlohaAck"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(m))
	}
}

// NoCni marks an absent CNI sample on the wire (spec.md §6: "i16
// cni_centibels (-32768 = N/A)").
const NoCni int16 = -32768

// CommonHeader is shared by every DvbFrame variant, per spec.md §3/§6.
type CommonHeader struct {
	MessageType   MessageType
	CarrierID     uint8
	SpotID        uint16
	PayloadLength uint16
	CniCentibels  int16
}

const commonHeaderSize = 1 + 1 + 2 + 2 + 2 // 8 bytes

func (h CommonHeader) encode(buf []byte) {
	buf[0] = uint8(h.MessageType)
	buf[1] = h.CarrierID
	binary.LittleEndian.PutUint16(buf[2:4], h.SpotID)
	binary.LittleEndian.PutUint16(buf[4:6], h.PayloadLength)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.CniCentibels))
}

func decodeCommonHeader(buf []byte) (CommonHeader, error) {
	if len(buf) < commonHeaderSize {
		return CommonHeader{}, ErrShortFrame
	}
	return CommonHeader{
		MessageType:   MessageType(buf[0]),
		CarrierID:     buf[1],
		SpotID:        binary.LittleEndian.Uint16(buf[2:4]),
		PayloadLength: binary.LittleEndian.Uint16(buf[4:6]),
		CniCentibels:  int16(binary.LittleEndian.Uint16(buf[6:8])),
	}, nil
}

// DvbFrame is a tagged variant over the ten MessageType kinds above.
// Exactly one of the payload fields is meaningful, selected by Header.MessageType.
// A frame is owned by whichever block last received or built it; forwarding
// it downstream is a move (the sender must not reuse it), per spec.md §9.
type DvbFrame struct {
	Header CommonHeader

	// MsgSof
	SuperframeNumber uint32

	// MsgSac
	SacTalID     uint16
	SacRbdcKbps  uint32
	SacVbdcPkt   uint32

	// MsgSlottedAlohaData
	SaTalID     uint16
	SaBaseID    uint64
	SaReplicaID uint8
	SaNbReplicas uint8
	SaSlotID    uint16

	// MsgSlottedAlohaAck
	SaAcks []SaAckEntry

	// MsgDvbRcsFrame / MsgBBFrame / MsgLogonReq / MsgLogonResp / MsgTtp / MsgCsc
	Payload []byte
}

// SaAckEntry identifies one acknowledged logical Slotted-Aloha packet.
type SaAckEntry struct {
	TalID  uint16
	BaseID uint64
}

// Encode serializes the frame to its wire representation. Endianness is
// little-endian throughout, resolving spec.md §9's open question.
func (f *DvbFrame) Encode() ([]byte, error) {
	var body []byte
	switch f.Header.MessageType {
	case MsgSof:
		body = make([]byte, 4)
		binary.LittleEndian.PutUint32(body, f.SuperframeNumber)
	case MsgSac:
		body = make([]byte, 2+4+4+2)
		binary.LittleEndian.PutUint16(body[0:2], f.SacTalID)
		binary.LittleEndian.PutUint32(body[2:6], f.SacRbdcKbps)
		binary.LittleEndian.PutUint32(body[6:10], f.SacVbdcPkt)
		binary.LittleEndian.PutUint16(body[10:12], uint16(f.Header.CniCentibels))
	case MsgSlottedAlohaData:
		body = make([]byte, 2+8+1+1+2+len(f.Payload))
		binary.LittleEndian.PutUint16(body[0:2], f.SaTalID)
		binary.LittleEndian.PutUint64(body[2:10], f.SaBaseID)
		body[10] = f.SaReplicaID
		body[11] = f.SaNbReplicas
		binary.LittleEndian.PutUint16(body[12:14], f.SaSlotID)
		copy(body[14:], f.Payload)
	case MsgSlottedAlohaAck:
		body = make([]byte, len(f.SaAcks)*(2+8))
		for i, ack := range f.SaAcks {
			off := i * 10
			binary.LittleEndian.PutUint16(body[off:off+2], ack.TalID)
			binary.LittleEndian.PutUint64(body[off+2:off+10], ack.BaseID)
		}
	case MsgDvbRcsFrame, MsgBBFrame, MsgLogonReq, MsgLogonResp, MsgTtp, MsgCsc:
		body = f.Payload
	default:
		return nil, ErrUnknownFrame
	}
	if len(body) > 0xFFFF {
		return nil, ErrPayloadLength
	}
	f.Header.PayloadLength = uint16(len(body))
	out := make([]byte, commonHeaderSize+len(body))
	f.Header.encode(out)
	copy(out[commonHeaderSize:], body)
	return out, nil
}

// Decode parses a wire buffer into a DvbFrame.
func Decode(buf []byte) (*DvbFrame, error) {
	header, err := decodeCommonHeader(buf)
	if err != nil {
		return nil, err
	}
	body := buf[commonHeaderSize:]
	if len(body) != int(header.PayloadLength) {
		return nil, ErrPayloadLength
	}
	f := &DvbFrame{Header: header}
	switch header.MessageType {
	case MsgSof:
		if len(body) < 4 {
			return nil, ErrShortFrame
		}
		f.SuperframeNumber = binary.LittleEndian.Uint32(body)
	case MsgSac:
		if len(body) < 12 {
			return nil, ErrShortFrame
		}
		f.SacTalID = binary.LittleEndian.Uint16(body[0:2])
		f.SacRbdcKbps = binary.LittleEndian.Uint32(body[2:6])
		f.SacVbdcPkt = binary.LittleEndian.Uint32(body[6:10])
		f.Header.CniCentibels = int16(binary.LittleEndian.Uint16(body[10:12]))
	case MsgSlottedAlohaData:
		if len(body) < 14 {
			return nil, ErrShortFrame
		}
		f.SaTalID = binary.LittleEndian.Uint16(body[0:2])
		f.SaBaseID = binary.LittleEndian.Uint64(body[2:10])
		f.SaReplicaID = body[10]
		f.SaNbReplicas = body[11]
		f.SaSlotID = binary.LittleEndian.Uint16(body[12:14])
		f.Payload = append([]byte(nil), body[14:]...)
	case MsgSlottedAlohaAck:
		if len(body)%10 != 0 {
			return nil, ErrShortFrame
		}
		n := len(body) / 10
		f.SaAcks = make([]SaAckEntry, n)
		for i := 0; i < n; i++ {
			off := i * 10
			f.SaAcks[i] = SaAckEntry{
				TalID:  binary.LittleEndian.Uint16(body[off : off+2]),
				BaseID: binary.LittleEndian.Uint64(body[off+2 : off+10]),
			}
		}
	case MsgDvbRcsFrame, MsgBBFrame, MsgLogonReq, MsgLogonResp, MsgTtp, MsgCsc:
		f.Payload = append([]byte(nil), body...)
	default:
		return nil, ErrUnknownFrame
	}
	return f, nil
}
