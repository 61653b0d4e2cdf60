package aloha

import (
	"testing"

	rcs2mac "github.com/opensand/rcs2mac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataFrame(talID uint16, baseID uint64, replicaID uint8, slot uint16, payload string) *rcs2mac.DvbFrame {
	return &rcs2mac.DvbFrame{
		Header:       rcs2mac.CommonHeader{MessageType: rcs2mac.MsgSlottedAlohaData},
		SaTalID:      talID,
		SaBaseID:     baseID,
		SaReplicaID:  replicaID,
		SaNbReplicas: 2,
		SaSlotID:     slot,
		Payload:      []byte(payload),
	}
}

// TestSingleCollisionScenario implements spec.md §8 scenario S3: two STs,
// each sending one packet with nb_replicas=2 on a 4-slot carrier. Slot 1
// hosts both STs' first replica (collision); slot 3 hosts only ST-A's
// second replica (clean). ST-A is received via slot 3; ST-B is fully lost.
func TestSingleCollisionScenario(t *testing.T) {
	ncc := NewNcc(1, 10)

	require.NoError(t, ncc.IngestFrame(dataFrame(1 /*A*/, 100, 0, 1, "a0")))
	require.NoError(t, ncc.IngestFrame(dataFrame(2 /*B*/, 200, 0, 1, "b0")))
	require.NoError(t, ncc.IngestFrame(dataFrame(1, 100, 1, 3, "a1")))
	// ST-B's second replica never arrives, e.g. lost on the link.

	res, err := ncc.Resolve(1, nil)
	require.NoError(t, err)

	require.Len(t, res.Acks, 1)
	assert.Equal(t, uint16(1), res.Acks[0].TalID)
	assert.Equal(t, uint64(100), res.Acks[0].BaseID)
	assert.Equal(t, 1, res.Dropped)
}

func TestAllReplicasCollidedIsSilentlyLost(t *testing.T) {
	ncc := NewNcc(1, 10)
	require.NoError(t, ncc.IngestFrame(dataFrame(1, 100, 0, 1, "a0")))
	require.NoError(t, ncc.IngestFrame(dataFrame(2, 200, 0, 1, "b0")))
	require.NoError(t, ncc.IngestFrame(dataFrame(1, 100, 1, 2, "a1")))
	require.NoError(t, ncc.IngestFrame(dataFrame(2, 200, 1, 2, "b1")))

	res, err := ncc.Resolve(1, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Acks)
	assert.Equal(t, 2, res.Dropped)
}

func TestResolveResetsSlotTableBetweenSuperframes(t *testing.T) {
	ncc := NewNcc(1, 10)
	require.NoError(t, ncc.IngestFrame(dataFrame(1, 100, 0, 1, "a0")))
	_, err := ncc.Resolve(1, nil)
	require.NoError(t, err)

	res, err := ncc.Resolve(2, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Acks)
	assert.Equal(t, 0, res.Dropped)
}

func TestBuildAckFrameNilWhenEmpty(t *testing.T) {
	ncc := NewNcc(1, 10)
	assert.Nil(t, ncc.BuildAckFrame(nil, 5))

	frame := ncc.BuildAckFrame([]rcs2mac.SaAckEntry{{TalID: 1, BaseID: 2}}, 5)
	require.NotNil(t, frame)
	assert.Equal(t, rcs2mac.MsgSlottedAlohaAck, frame.Header.MessageType)
}
