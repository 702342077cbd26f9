// Package refresh raises the event-cache refresh flag on a cron schedule.
package refresh

import (
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "weekcal/internal/log"
)

// Target is anything whose cached events can be marked stale.
type Target interface {
	RequestRefresh()
}

// Func adapts a function to Target.
type Func func()

func (f Func) RequestRefresh() { f() }

// Targets fans one refresh request out to several targets, in order.
type Targets []Target

func (ts Targets) RequestRefresh() {
	for _, t := range ts {
		t.RequestRefresh()
	}
}

// Start schedules t.RequestRefresh on schedule (standard 5-field cron) and
// starts the scheduler. The caller stops it with Stop.
func Start(schedule string, t Target) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		appLog.Info("scheduled refresh", "schedule", schedule)
		t.RequestRefresh()
	}); err != nil {
		return nil, fmt.Errorf("refresh: schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
