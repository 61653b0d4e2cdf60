// Package aloha implements C7 (SlottedAlohaTal) and C8 (SlottedAlohaNcc):
// the random-access transmitter with backoff and its collision-resolving
// receiver counterpart. Grounded on pkg/sdo/client.go's pending-transfer
// bookkeeping (for the ST side) and pkg/sdo/server.go's per-request
// dispatch (for the GW side) in the teacher repo.
package aloha

// Packet is the "SlottedAlohaPacket" of spec.md §3: equality for collision
// detection is (TalID, BaseID, ReplicaID); (TalID, BaseID) identifies the
// logical packet (the set of its replicas).
type Packet struct {
	TalID               uint16
	Qos                 uint8
	BaseID              uint64
	ReplicaID           uint8
	NbReplicas          uint8
	TimestampSuperframe uint32
	Payload             []byte

	retransmissions uint8
}

// LogicalID is (TalID, BaseID), uniquely identifying a logical packet
// across its replicas (spec.md §3).
type LogicalID struct {
	TalID  uint16
	BaseID uint64
}
