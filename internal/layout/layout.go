// Package layout places event chips side by side inside a day column.
//
// Chips are first split by calendar day, then into collision groups, and
// each group is packed greedily into columns. Both steps are order
// dependent: the input order decides group membership and column choice.
package layout

import "weekcal/internal/model"

// Fixed vertical extent for all-day chips.
const (
	AllDayTop    = 0
	AllDayBottom = 100
)

// Compute lays out chips and returns new chips carrying their Rect. The
// result is in day-grouped order: all chips sharing the first remaining
// chip's day, in input order, then the next day, and so on. The input is
// not modified.
func Compute(chips []model.EventChip, minHour int) []model.EventChip {
	out := make([]model.EventChip, 0, len(chips))
	for _, day := range dayGroups(chips) {
		dayChips := pick(chips, day)
		rects := make([]model.Rect, len(dayChips))
		for _, group := range collisionGroups(dayChips) {
			packed := PackColumns(pick(dayChips, group), minHour)
			for k, idx := range group {
				rects[idx] = packed[k]
			}
		}
		for k, c := range dayChips {
			c.Rect = rects[k]
			out = append(out, c)
		}
	}
	return out
}

// GroupCollisions partitions chips into collision groups scoped to a single
// calendar day. Groups are returned day by day, in discovery order.
func GroupCollisions(chips []model.EventChip) [][]model.EventChip {
	var out [][]model.EventChip
	for _, day := range dayGroups(chips) {
		dayChips := pick(chips, day)
		for _, group := range collisionGroups(dayChips) {
			out = append(out, pick(dayChips, group))
		}
	}
	return out
}

// dayGroups repeatedly takes the first unassigned chip as anchor and
// collects every later chip on the same calendar day.
func dayGroups(chips []model.EventChip) [][]int {
	var groups [][]int
	taken := make([]bool, len(chips))
	for i := range chips {
		if taken[i] {
			continue
		}
		anchor := chips[i].Event
		group := []int{i}
		taken[i] = true
		for j := i + 1; j < len(chips); j++ {
			if !taken[j] && anchor.IsSameDay(chips[j].Event) {
				group = append(group, j)
				taken[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// collisionGroups adds each chip to the first group holding a chip it
// collides with and that shares its all-day flag, or opens a new group.
func collisionGroups(chips []model.EventChip) [][]int {
	var groups [][]int
	for i, c := range chips {
		placed := false
	search:
		for g, group := range groups {
			for _, member := range group {
				other := chips[member].Event
				if other.CollidesWith(c.Event) && other.AllDay == c.Event.AllDay {
					groups[g] = append(groups[g], i)
					placed = true
					break search
				}
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}
	return groups
}

func pick(chips []model.EventChip, idx []int) []model.EventChip {
	out := make([]model.EventChip, 0, len(idx))
	for _, i := range idx {
		out = append(out, chips[i])
	}
	return out
}
