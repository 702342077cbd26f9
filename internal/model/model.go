package model

import (
	"strings"
	"time"
)

// Event is a single concrete calendar entry as delivered by an event
// loader. The layout engine only reads it.
type Event struct {
	SourceID string // calendar source ID (e.g., config ICS ID)
	UID      string // iCalendar UID or host-assigned identifier

	Summary  string
	Location string

	AllDay bool

	// Start / End are in the display timezone chosen by the loader.
	Start time.Time
	End   time.Time
}

// IsSameDay reports whether both events start on the same calendar date.
// Each start is read in its own location.
func (e Event) IsSameDay(other Event) bool {
	y1, m1, d1 := e.Start.Date()
	y2, m2, d2 := other.Start.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// CollidesWith reports whether the half-open intervals [Start, End) of the
// two events overlap. Back-to-back events do not collide.
func (e Event) CollidesWith(other Event) bool {
	return e.Start.Before(other.End) && other.Start.Before(e.End)
}

// CompareByStart orders events by start, then end, then UID. It is the
// default chip ordering handed to the layout pipeline.
func CompareByStart(a, b Event) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	return strings.Compare(a.UID, b.UID)
}

// Rect is the computed placement of a chip inside one day column.
// Left and Width are fractions of the column width; Top and Bottom are
// minutes since the first displayed hour.
type Rect struct {
	Left   float64
	Width  float64
	Top    int
	Bottom int
}

// EventChip pairs an event with its layout. Rect is only meaningful after
// a layout pass has produced the chip.
type EventChip struct {
	Event Event
	Rect  Rect
}

// NewChips wraps events into chips with zero layout.
func NewChips(events []Event) []EventChip {
	chips := make([]EventChip, 0, len(events))
	for _, ev := range events {
		chips = append(chips, EventChip{Event: ev})
	}
	return chips
}
