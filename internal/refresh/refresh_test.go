package refresh

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetsFanOut(t *testing.T) {
	var order []string
	ts := Targets{
		Func(func() { order = append(order, "loader") }),
		Func(func() { order = append(order, "scheduler") }),
	}

	ts.RequestRefresh()

	assert.Equal(t, []string{"loader", "scheduler"}, order)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, err := Start("sometimes", Func(func() {}))
	assert.ErrorContains(t, err, "refresh: schedule")
}

func TestStartRegistersJob(t *testing.T) {
	var calls atomic.Int32
	c, err := Start("*/5 * * * *", Func(func() { calls.Add(1) }))
	require.NoError(t, err)
	defer c.Stop()

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Next.IsZero())

	entries[0].Job.Run()
	assert.EqualValues(t, 1, calls.Load())
}
