package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

const defaultMaxPerEntry = 5000

// ExpandConfig selects the occurrences to produce.
type ExpandConfig struct {
	// Location is the display timezone of the produced events. Nil means
	// time.Local.
	Location *time.Location

	// Occurrences starting in [RangeStart, RangeEnd) are kept. Bucketing
	// by start keeps an event that spans two periods in exactly one.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxPerEntry caps the occurrences of one recurring entry. Zero means
	// defaultMaxPerEntry.
	MaxPerEntry int
}

// Expand turns entries into concrete events, applying RRULE, EXDATE and
// RECURRENCE-ID overrides. It also returns the UIDs whose expansion hit
// the cap.
func Expand(entries []Entry, cfg ExpandConfig) ([]model.Event, []string, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, nil, errors.New("ics: expand range ends before it starts")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxPerEntry <= 0 {
		cfg.MaxPerEntry = defaultMaxPerEntry
	}

	// Overrides are keyed by UID; entries of the same UID keep file order.
	var (
		order     []string
		bases     = make(map[string][]Entry)
		overrides = make(map[string][]Entry)
	)
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		if _, seen := bases[e.UID]; !seen {
			order = append(order, e.UID)
		}
		bases[e.UID] = append(bases[e.UID], e)
	}

	events := make([]model.Event, 0)
	var truncated []string
	for _, uid := range order {
		capped := false
		for _, base := range bases[uid] {
			out, hit := expandEntry(base, overrides[uid], cfg)
			events = append(events, out...)
			capped = capped || hit
		}
		if capped {
			truncated = append(truncated, uid)
			appLog.Warn("ics expansion truncated", "uid", uid, "cap", cfg.MaxPerEntry)
		}
	}
	return events, truncated, nil
}

func expandEntry(e Entry, overrides []Entry, cfg ExpandConfig) ([]model.Event, bool) {
	if e.RRule == "" {
		start, end, src := applyOverride(e, overrides, e.Start, e.End)
		if !inRange(start, cfg) {
			return nil, false
		}
		return []model.Event{toEvent(src, start, end, cfg.Location)}, false
	}

	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("ics rrule parse failed", err, "uid", e.UID, "rrule", e.RRule)
		return nil, false
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	loc := e.Start.Location()
	starts := set.Between(cfg.RangeStart.In(loc), cfg.RangeEnd.In(loc), true)
	hit := false
	if len(starts) > cfg.MaxPerEntry {
		starts = starts[:cfg.MaxPerEntry]
		hit = true
	}

	duration := e.End.Sub(e.Start)
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		end := s.Add(duration)
		if e.AllDay {
			y, m, d := s.Date()
			s = time.Date(y, m, d, 0, 0, 0, 0, loc)
			end = s.AddDate(0, 0, int(duration.Hours()/24+0.5))
		}
		start, end, src := applyOverride(e, overrides, s, end)
		if !inRange(start, cfg) {
			continue
		}
		out = append(out, toEvent(src, start, end, cfg.Location))
	}
	return out, hit
}

// applyOverride swaps in the override whose RECURRENCE-ID equals start.
func applyOverride(base Entry, overrides []Entry, start, end time.Time) (time.Time, time.Time, Entry) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o.Start, o.End, o
		}
	}
	return start, end, base
}

func inRange(start time.Time, cfg ExpandConfig) bool {
	return !start.Before(cfg.RangeStart) && start.Before(cfg.RangeEnd)
}

func toEvent(e Entry, start, end time.Time, loc *time.Location) model.Event {
	if e.AllDay {
		// Dates are calendar days, not instants; keep the wall date.
		y, m, d := start.Date()
		ey, em, ed := end.Date()
		return model.Event{
			SourceID: e.Feed.ID,
			UID:      e.UID,
			Summary:  e.Summary,
			Location: e.Location,
			AllDay:   true,
			Start:    time.Date(y, m, d, 0, 0, 0, 0, loc),
			End:      time.Date(ey, em, ed, 0, 0, 0, 0, loc),
		}
	}
	return model.Event{
		SourceID: e.Feed.ID,
		UID:      e.UID,
		Summary:  e.Summary,
		Location: e.Location,
		Start:    start.In(loc),
		End:      end.In(loc),
	}
}
