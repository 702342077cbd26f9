package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "weekcal/internal/log"
)

// Entry is one VEVENT before recurrence expansion.
type Entry struct {
	Feed Feed

	UID      string
	Summary  string
	Location string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time
	// RecurrenceID is set on VEVENTs that replace one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// ParseICS parses a feed body. VEVENTs that cannot be read are logged and
// skipped; floating times and dates are read in loc.
func ParseICS(feed Feed, body []byte, loc *time.Location) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		entry, err := parseEvent(feed, ve, loc)
		if err != nil {
			appLog.Warn("ics vevent skipped", "id", feed.ID, "reason", err)
			continue
		}
		entries = append(entries, entry)
	}

	appLog.Debug("ics parse completed", "id", feed.ID, "entries", len(entries))
	return entries, nil
}

func parseEvent(feed Feed, ve *ical.VEvent, loc *time.Location) (Entry, error) {
	e := Entry{Feed: feed}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		e.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return e, errors.New("missing DTSTART")
	}
	e.AllDay = isDateValue(dtStart)

	var err error
	if e.AllDay {
		e.Start, err = ve.GetAllDayStartAt()
	} else {
		e.Start, err = ve.GetStartAt()
	}
	if err != nil || e.Start.IsZero() {
		// The library rejects some valid forms; fall back to the raw value.
		if e.Start, err = parseTime(dtStart.Value, loc); err != nil {
			return e, err
		}
	}
	if e.AllDay {
		y, m, d := e.Start.Date()
		e.Start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil && dtEnd.Value != "" {
		if e.AllDay {
			e.End, err = ve.GetAllDayEndAt()
		} else {
			e.End, err = ve.GetEndAt()
		}
		if err != nil || e.End.IsZero() {
			e.End, _ = parseTime(dtEnd.Value, loc)
		}
		if e.AllDay && !e.End.IsZero() {
			y, m, d := e.End.Date()
			e.End = time.Date(y, m, d, 0, 0, 0, 0, loc)
		}
	}
	if !e.End.After(e.Start) {
		// RFC 5545: a missing DTEND means one day for dates and zero
		// duration for date-times.
		if e.AllDay {
			e.End = e.Start.AddDate(0, 0, 1)
		} else {
			e.End = e.Start
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, loc); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseTime(p.Value, loc); err == nil {
			e.RecurrenceID = &t
		}
	}

	return e, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseTime reads the basic DATE / DATE-TIME / UTC forms. Floating values
// are read in loc.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
