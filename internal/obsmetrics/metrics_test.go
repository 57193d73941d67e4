package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNew_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PackBytes.Add(128)
	m.ChunksIssued.Inc()
	m.ChunksIssued.Inc()

	require.Equal(t, 128.0, counterValue(t, m.PackBytes))
	require.Equal(t, 2.0, counterValue(t, m.ChunksIssued))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestObserveSlabHighWater(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSlabHighWater("gpu:local:0", 4096)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "dtpack_slab_high_water_bytes" {
			found = true
			require.Equal(t, 4096.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	require.True(t, found)
}
