package layout

import "weekcal/internal/model"

// Columns assigns each chip of a group to a column index. A chip goes into
// the first column whose last chip it does not collide with; otherwise a
// new column is opened. The result is parallel to group.
//
// group must be ordered by start; checking only the last chip of a column
// is not enough otherwise.
func Columns(group []model.EventChip) (cols []int, count int) {
	cols = make([]int, len(group))
	var last []int // index of the most recent chip in each column
	for i, c := range group {
		placed := false
		for col, tail := range last {
			if !c.Event.CollidesWith(group[tail].Event) {
				cols[i] = col
				last[col] = i
				placed = true
				break
			}
		}
		if !placed {
			cols[i] = len(last)
			last = append(last, i)
		}
	}
	return cols, len(last)
}

// PackColumns computes the Rect of every chip in a collision group. All
// chips share the width 1/columnCount; left is the column offset. The
// result is parallel to group, which must be ordered by start.
func PackColumns(group []model.EventChip, minHour int) []model.Rect {
	rects := make([]model.Rect, len(group))
	if len(group) == 0 {
		return rects
	}

	cols, count := Columns(group)
	width := 1 / float64(count)
	for i, c := range group {
		rects[i] = model.Rect{
			Left:  float64(cols[i]) / float64(count),
			Width: width,
		}
		rects[i].Top, rects[i].Bottom = verticalExtent(c.Event, minHour)
	}
	return rects
}

// verticalExtent returns minutes since minHour for the start and end
// clock times. Days are not considered; an end past midnight wraps.
func verticalExtent(ev model.Event, minHour int) (top, bottom int) {
	if ev.AllDay {
		return AllDayTop, AllDayBottom
	}
	top = (ev.Start.Hour()-minHour)*60 + ev.Start.Minute()
	bottom = (ev.End.Hour()-minHour)*60 + ev.End.Minute()
	return top, bottom
}
