package modcod

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefs() []Def {
	return []Def{
		{ID: 1, SpectralEfficiencyBpsPerSymbol: 1.0, RequiredEsn0Db: 1.0, BurstLengthSymbols: 536},
		{ID: 2, SpectralEfficiencyBpsPerSymbol: 2.0, RequiredEsn0Db: 4.5, BurstLengthSymbols: 536},
		{ID: 3, SpectralEfficiencyBpsPerSymbol: 3.0, RequiredEsn0Db: 8.0, BurstLengthSymbols: 536},
	}
}

func TestNewTableRejectsNonIncreasingEfficiency(t *testing.T) {
	_, err := NewTable([]Def{
		{ID: 1, SpectralEfficiencyBpsPerSymbol: 2.0, RequiredEsn0Db: 1.0},
		{ID: 2, SpectralEfficiencyBpsPerSymbol: 1.0, RequiredEsn0Db: 4.0},
	})
	require.Error(t, err)
}

func TestDefLookup(t *testing.T) {
	table, err := NewTable(sampleDefs())
	require.NoError(t, err)

	def, err := table.Def(2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, def.SpectralEfficiencyBpsPerSymbol)

	_, err = table.Def(99)
	assert.Error(t, err)
}

func TestBestIDFor(t *testing.T) {
	table, err := NewTable(sampleDefs())
	require.NoError(t, err)

	id, err := table.BestIDFor(8.0)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), id)

	id, err = table.BestIDFor(5.0)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), id)

	_, err = table.BestIDFor(0.0)
	require.Error(t, err)
	assert.True(t, ErrNoModcodAvailable(err))
}

func TestConverterRoundTrip(t *testing.T) {
	table, err := NewTable(sampleDefs())
	require.NoError(t, err)
	// 1 superframe = 10ms, packet = 64 bytes = 512 bits.
	conv := NewConverter(table, 10, 64)

	// S1 scenario numbers: 500 kbps at modcod efficiency 2 bps/symbol.
	pkt, credit, err := conv.KbpsToPktpf(500, 2)
	require.NoError(t, err)
	assert.Greater(t, pkt, uint32(0))
	assert.GreaterOrEqual(t, credit, 0.0)

	back, err := conv.PktpfToKbps(pkt, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, back, 500.0)
}

func TestConverterUnknownModcod(t *testing.T) {
	table, err := NewTable(sampleDefs())
	require.NoError(t, err)
	conv := NewConverter(table, 10, 64)
	_, _, err = conv.KbpsToPktpf(100, 42)
	assert.Error(t, err)
}
