// Package scheduler keeps the period cache covering the visible days and
// re-runs the layout pipeline whenever the cached window changes.
//
// The scheduler is the only writer of its cache. A fetch cycle reads the
// current window, loads missing periods without holding the lock, then
// commits and lays out the new window under the lock. Concurrent requests
// for the same period share one cycle; a cycle whose period is no longer
// the most recently requested one is discarded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"weekcal/internal/cache"
	"weekcal/internal/layout"
	appLog "weekcal/internal/log"
	"weekcal/internal/metrics"
	"weekcal/internal/model"
)

var (
	// ErrNoLoader is returned when no event loader was configured.
	ErrNoLoader = errors.New("scheduler: no event loader configured")
	// ErrNoIndex is returned when no period index function was configured.
	ErrNoIndex = errors.New("scheduler: no period index function configured")
	// ErrStale is returned when a newer period request superseded the
	// cycle before it could commit. The cache is left untouched.
	ErrStale = errors.New("scheduler: fetch superseded by a newer period")
	// ErrRangeTooWide is returned when the visible days span more periods
	// than one cached window can hold.
	ErrRangeTooWide = errors.New("scheduler: visible days span more than two periods")
)

// Loader returns the events of one period. It may be called repeatedly
// with the same period and must not rely on call order.
type Loader interface {
	Load(ctx context.Context, period int) ([]model.Event, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, period int) ([]model.Event, error)

func (f LoaderFunc) Load(ctx context.Context, period int) ([]model.Event, error) {
	return f(ctx, period)
}

// IndexFunc maps a calendar day to its period. It must be consistent and
// monotonic in day order.
type IndexFunc func(day time.Time) int

// Options configures a Scheduler.
type Options struct {
	Index  IndexFunc
	Loader Loader
	// Compare orders chips before layout. Defaults to model.CompareByStart.
	// It must order by start first; column packing relies on it.
	Compare func(a, b model.Event) int
	// MinHour is the first displayed hour; chip tops are minutes after it.
	MinHour int
	// Preview turns LoadEventsIfNecessary into a no-op, for hosts that
	// render without live data.
	Preview bool
	Metrics *metrics.Recorder
}

// Scheduler owns a cache.Periods and the refresh flag.
type Scheduler struct {
	mu    sync.Mutex
	cache *cache.Periods
	opts  Options

	refresh atomic.Bool
	wanted  atomic.Int64
	flight  singleflight.Group
}

// New returns a Scheduler writing into c. A nil c gets a fresh cache.
func New(c *cache.Periods, opts Options) *Scheduler {
	if c == nil {
		c = cache.New()
	}
	if opts.Compare == nil {
		opts.Compare = model.CompareByStart
	}
	s := &Scheduler{cache: c, opts: opts}
	s.wanted.Store(cache.NoPeriod)
	return s
}

// RequestRefresh asks the next load to drop the cache and refetch.
func (s *Scheduler) RequestRefresh() {
	s.refresh.Store(true)
}

// RefreshRequested reports whether a refresh is pending.
func (s *Scheduler) RefreshRequested() bool {
	return s.refresh.Load()
}

// LoadEventsIfNecessary makes sure the cache covers every day in days,
// fetching and laying out a new window for each day whose period differs
// from the cached one. It stops at the first error.
func (s *Scheduler) LoadEventsIfNecessary(ctx context.Context, days []time.Time) error {
	if s.opts.Preview {
		return nil
	}
	if s.opts.Loader == nil {
		return ErrNoLoader
	}
	if s.opts.Index == nil {
		return ErrNoIndex
	}
	if len(days) > 1 && s.opts.Index(days[len(days)-1])-s.opts.Index(days[0]) > 1 {
		return ErrRangeTooWide
	}

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}

		p := s.opts.Index(day)
		refresh := s.refresh.Load()
		if !refresh && !s.needsFetch(p) {
			continue
		}
		if refresh {
			// Another caller may have consumed it in the meantime.
			refresh = s.refresh.Swap(false)
		}

		appLog.Debug("period fetch needed",
			"day", day.Format(time.DateOnly),
			"period", p,
			"refresh", refresh,
		)
		if err := s.load(ctx, p, refresh); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) needsFetch(p int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.IsEmpty() || s.cache.FetchedPeriod() != p
}

func (s *Scheduler) load(ctx context.Context, p int, refresh bool) error {
	s.wanted.Store(int64(p))

	key := strconv.Itoa(p)
	if refresh {
		key += "/refresh"
	}
	// Shared cycles outlive the caller that started them.
	cycleCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return nil, s.cycle(cycleCtx, p, refresh)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// cycle runs one fetch cycle for period p and commits it if p is still the
// latest requested period.
func (s *Scheduler) cycle(ctx context.Context, p int, refresh bool) error {
	s.mu.Lock()
	current := s.cache.Window()
	s.mu.Unlock()

	if refresh {
		current = cache.Window{Period: cache.NoPeriod}
	} else if current.Period == p {
		// Already loaded; only the layout is redone.
		s.mu.Lock()
		s.layoutLocked()
		s.mu.Unlock()
		return nil
	}

	next, reused := shift(current, p)
	s.opts.Metrics.SlotsReused(reused)

	loads, err := s.fill(ctx, &next)
	if err != nil {
		s.opts.Metrics.Cycle("failed")
		if refresh {
			s.refresh.Store(true)
		}
		appLog.Error("period fetch failed; keeping cached window", err,
			"period", p,
			"cached_period", current.Period,
		)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if latest := int(s.wanted.Load()); latest != p {
		s.opts.Metrics.Cycle("stale")
		if refresh {
			s.refresh.Store(true)
		}
		appLog.Warn("discarding stale period fetch", "period", p, "latest", latest)
		return ErrStale
	}

	s.cache.Commit(next, s.opts.Compare)
	s.layoutLocked()
	s.opts.Metrics.Cycle("committed")

	appLog.Info("period window committed",
		"period", p,
		"loaded", loads,
		"reused", reused,
		"refresh", refresh,
		"chips", len(s.cache.Chips()),
	)
	return nil
}

// shift carries slots of the cached window w over to a window centred on
// p. Slots that cannot be reused are left nil.
func shift(w cache.Window, p int) (cache.Window, int) {
	out := cache.Window{Period: p}
	if !w.Complete() {
		return out, 0
	}
	switch p {
	case w.Period - 1:
		out.Current, out.Next = w.Previous, w.Current
		return out, 2
	case w.Period:
		out.Previous, out.Current, out.Next = w.Previous, w.Current, w.Next
		return out, 3
	case w.Period + 1:
		out.Previous, out.Current = w.Current, w.Next
		return out, 2
	}
	return out, 0
}

// fill loads the nil slots of w, current first since it is the one most
// likely on screen. Any failure aborts the fill.
func (s *Scheduler) fill(ctx context.Context, w *cache.Window) (int, error) {
	slots := []struct {
		offset int
		dst    *[]model.Event
	}{
		{0, &w.Current},
		{-1, &w.Previous},
		{1, &w.Next},
	}

	loads := 0
	for _, slot := range slots {
		if *slot.dst != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return loads, err
		}

		period := w.Period + slot.offset
		events, err := s.opts.Loader.Load(ctx, period)
		s.opts.Metrics.LoaderCall(slot.offset, err)
		loads++
		if err != nil {
			return loads, fmt.Errorf("scheduler: load period %d: %w", period, err)
		}
		if events == nil {
			events = []model.Event{}
		}
		*slot.dst = slices.Clone(events)
	}
	return loads, nil
}

func (s *Scheduler) layoutLocked() {
	start := time.Now()
	chips := layout.Compute(s.cache.Chips(), s.opts.MinHour)
	s.cache.SetChips(chips)
	s.opts.Metrics.Layout(time.Since(start), len(chips), s.cache.FetchedPeriod())
}

// FetchedPeriod returns the committed period, or cache.NoPeriod.
func (s *Scheduler) FetchedPeriod() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.FetchedPeriod()
}

// Window returns the committed slots.
func (s *Scheduler) Window() cache.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Window()
}

// Chips returns a copy of the laid-out chip list.
func (s *Scheduler) Chips() []model.EventChip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Chips()
}

// ChipsFor returns the laid-out chips whose event starts on one of days,
// in cache order.
func (s *Scheduler) ChipsFor(days []time.Time) []model.EventChip {
	want := make(map[[3]int]struct{}, len(days))
	for _, d := range days {
		want[dateKey(d)] = struct{}{}
	}

	var out []model.EventChip
	for _, c := range s.Chips() {
		if _, ok := want[dateKey(c.Event.Start)]; ok {
			out = append(out, c)
		}
	}
	return out
}

func dateKey(t time.Time) [3]int {
	y, m, d := t.Date()
	return [3]int{y, int(m), d}
}
