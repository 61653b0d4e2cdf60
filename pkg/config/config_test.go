package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opensand/rcs2mac/pkg/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleINI = `
[general]
superframe_duration_ms = 26
packet_bytes = 188
modcod_table_path = modcod.ini

[carrier_ids]
logon_id = 1
control_id = 2
data_in_st = 3
data_in_gw = 4
data_out_st = 5
data_out_gw = 6

[dama]
fca_kbps = 16

[aloha]
nb_replicas = 3
timeout_superframes = 4
nb_max_retransmissions = 5
slots_per_superframe = 32
backoff_algorithm = eied
cw_min = 2
cw_max = 128
multiple = 2

[category:std]
spot_id = 1

[carrier:std:1]
symbol_rate_bauds = 1000000
carriers_count = 2
allowed_modcod_ids = 1, 2, 3
nominal_modcod_id = 2
ratio = 0.5
access_type = dama
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rcs2mac.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestINIReaderLoadsGeneralAndDamaAndAloha(t *testing.T) {
	r, err := LoadINIReader(writeTemp(t, sampleINI))
	require.NoError(t, err)

	assert.Equal(t, uint32(26), r.SuperframeDurationMs())
	assert.Equal(t, uint32(188), r.PacketBytes())
	assert.Equal(t, "modcod.ini", r.ModcodTablePath())

	ids, err := r.CarrierIDs()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), ids.LogonID)
	assert.Equal(t, uint8(6), ids.DataOutGW)

	dama, err := r.Dama()
	require.NoError(t, err)
	assert.Equal(t, 16.0, dama.FcaKbps)

	aloha, err := r.Aloha()
	require.NoError(t, err)
	assert.Equal(t, uint8(3), aloha.NbReplicas)
	assert.Equal(t, "eied", aloha.BackoffAlgorithm)
}

func TestINIReaderLoadsCategoriesAndCarriers(t *testing.T) {
	r, err := LoadINIReader(writeTemp(t, sampleINI))
	require.NoError(t, err)

	cats, err := r.Categories()
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "std", cats[0].Label)
	assert.Equal(t, uint16(1), cats[0].SpotID)
	require.Len(t, cats[0].Carriers, 1)

	c := cats[0].Carriers[0]
	assert.Equal(t, uint8(1), c.CarriersID)
	assert.Equal(t, uint64(1000000), c.SymbolRateBauds)
	assert.Equal(t, []uint8{1, 2, 3}, c.AllowedModcodIDs)
	assert.Equal(t, uint8(2), c.NominalModcodID)
	assert.Equal(t, terminal.AccessDAMA, c.AccessType)
}

func TestINIReaderMissingCategoryCarriersErrors(t *testing.T) {
	bad := `
[category:orphan]
spot_id = 1
`
	r, err := LoadINIReader(writeTemp(t, bad))
	require.NoError(t, err)

	_, err = r.Categories()
	assert.Error(t, err)
}

func TestINIReaderMissingCarrierIdsErrors(t *testing.T) {
	r, err := LoadINIReader(writeTemp(t, "[general]\nsuperframe_duration_ms = 26\n"))
	require.NoError(t, err)

	_, err = r.CarrierIDs()
	assert.Error(t, err)
}
