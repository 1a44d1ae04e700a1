package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersIndependently(t *testing.T) {
	a, b := New(), New()
	a.EventsTotal.WithLabelValues("add").Inc()
	a.EventsTotal.WithLabelValues("add").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.EventsTotal.WithLabelValues("add")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EventsTotal.WithLabelValues("add")))
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.RowsWrittenTotal.Add(3)
	n, err := testutil.GatherAndCount(m.Registry, "mbp10_rows_written_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
