package blade

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnginesShareARegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	views := map[string]string{"v.blade": "v", "bad.blade": "@route('x')"}
	first := newTestEngine(t, views, WithRegistry(reg))
	second := newTestEngine(t, views, WithRegistry(reg))
	require.Same(t, first.metrics.compiles, second.metrics.compiles)

	renderView(t, first, "v", nil)
	renderView(t, second, "v", nil)
	renderView(t, second, "v", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.metrics.compiles.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.metrics.lookups.WithLabelValues("memory", "hit")))

	_, err := first.RenderToString(context.Background(), "bad", nil)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.metrics.failures.WithLabelValues("view")))

	count, err := testutil.GatherAndCount(reg, "blade_render_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetricsWithoutRegistry(t *testing.T) {
	e := newTestEngine(t, map[string]string{"v.blade": "v"})
	renderView(t, e, "v", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.compiles.WithLabelValues("file")))
}
