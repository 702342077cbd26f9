// Package cache holds the three-period sliding window of loaded events and
// the flattened chip list derived from it.
//
// A Periods value is not safe for concurrent use; its owner (the load
// scheduler) serializes access.
package cache

import (
	"slices"

	"weekcal/internal/model"
)

// NoPeriod is the fetched period of a cache that has never been loaded.
const NoPeriod = -1

// Periods is the sliding-window cache. Either all three slots are loaded
// and correspond to Fetched-1, Fetched and Fetched+1, or none are.
type Periods struct {
	fetched  int
	previous []model.Event
	current  []model.Event
	next     []model.Event
	chips    []model.EventChip
}

// Window is a snapshot of the three period slots. A nil slot is unknown.
type Window struct {
	Period   int
	Previous []model.Event
	Current  []model.Event
	Next     []model.Event
}

// Complete reports whether every slot is populated.
func (w Window) Complete() bool {
	return w.Previous != nil && w.Current != nil && w.Next != nil
}

func New() *Periods {
	return &Periods{fetched: NoPeriod}
}

// FetchedPeriod returns the period the window is centred on, or NoPeriod.
func (c *Periods) FetchedPeriod() int {
	return c.fetched
}

// IsEmpty reports whether the chip list is empty. A loaded window whose
// periods hold no events is also empty.
func (c *Periods) IsEmpty() bool {
	return len(c.chips) == 0
}

// Window returns the current slots. The slices are shared and must not be
// modified.
func (c *Periods) Window() Window {
	return Window{
		Period:   c.fetched,
		Previous: c.previous,
		Current:  c.current,
		Next:     c.next,
	}
}

// Clear drops all slots and chips and resets the fetched period.
func (c *Periods) Clear() {
	*c = Periods{fetched: NoPeriod}
}

// Commit replaces the window wholesale and rebuilds the chip list from
// previous, current and next events in that order. When cmp is non-nil the
// chips are stable-sorted with it. Nil slots are stored as empty.
func (c *Periods) Commit(w Window, cmp func(a, b model.Event) int) {
	c.fetched = w.Period
	c.previous = orEmpty(w.Previous)
	c.current = orEmpty(w.Current)
	c.next = orEmpty(w.Next)

	chips := make([]model.EventChip, 0, len(c.previous)+len(c.current)+len(c.next))
	chips = append(chips, model.NewChips(c.previous)...)
	chips = append(chips, model.NewChips(c.current)...)
	chips = append(chips, model.NewChips(c.next)...)
	if cmp != nil {
		slices.SortStableFunc(chips, func(a, b model.EventChip) int {
			return cmp(a.Event, b.Event)
		})
	}
	c.chips = chips
}

// Chips returns a copy of the chip list.
func (c *Periods) Chips() []model.EventChip {
	return slices.Clone(c.chips)
}

// SetChips stores the result of a layout pass.
func (c *Periods) SetChips(chips []model.EventChip) {
	c.chips = chips
}

func orEmpty(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}
