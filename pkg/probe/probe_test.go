package probe

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRegistersGaugeOnFirstUse(t *testing.T) {
	r := NewRegistry("rcs2mac")
	r.Set("fifo_fill_pkt", prometheus.Labels{"tal_id": "1"}, 42)

	mfs, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "rcs2mac_fifo_fill_pkt", mfs[0].GetName())
	assert.Equal(t, 42.0, mfs[0].Metric[0].GetGauge().GetValue())
}

func TestIncCreatesAndAccumulatesCounter(t *testing.T) {
	r := NewRegistry("rcs2mac")
	labels := prometheus.Labels{"kind": "collision"}
	r.Inc("aloha_events_total", labels)
	r.Inc("aloha_events_total", labels)

	mfs, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, 2.0, mfs[0].Metric[0].GetCounter().GetValue())
}

func TestDamaFairnessRatioHelper(t *testing.T) {
	r := NewRegistry("rcs2mac")
	DamaFairnessRatio(r, "std", 2.2)

	mfs, err := r.Gatherer().Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "rcs2mac_dama_fairness_ratio", mfs[0].GetName())
	assert.Equal(t, 2.2, mfs[0].Metric[0].GetGauge().GetValue())
}
