package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.LoaderCall(0, nil)
	r.LoaderCall(-1, nil)
	r.LoaderCall(1, errors.New("down"))
	r.SlotsReused(2)
	r.SlotsReused(0)
	r.Cycle("committed")
	r.Layout(3*time.Millisecond, 12, 24301)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.loaderCalls.WithLabelValues("0", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.loaderCalls.WithLabelValues("1", OutcomeError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.slotsReused))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("committed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.chips))
	assert.Equal(t, 24301.0, testutil.ToFloat64(r.fetched))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.LoaderCall(0, nil)
		r.SlotsReused(3)
		r.Cycle("failed")
		r.Layout(time.Second, 1, 1)
	})
}
