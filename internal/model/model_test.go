package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestIsSameDay(t *testing.T) {
	a := Event{Start: at(3, 9, 0), End: at(3, 10, 0)}
	b := Event{Start: at(3, 23, 30), End: at(4, 0, 30)}
	c := Event{Start: at(4, 0, 0), End: at(4, 1, 0)}

	assert.True(t, a.IsSameDay(b))
	assert.False(t, a.IsSameDay(c))
	assert.False(t, b.IsSameDay(c))
}

func TestIsSameDayUsesEventLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	a := Event{Start: time.Date(2025, time.March, 4, 1, 0, 0, 0, seoul)}
	b := Event{Start: time.Date(2025, time.March, 4, 8, 0, 0, 0, seoul)}
	c := Event{Start: time.Date(2025, time.March, 3, 20, 0, 0, 0, time.UTC)}

	assert.True(t, a.IsSameDay(b))
	// Same instant as 2025-03-04 05:00 KST, but the UTC date is the 3rd.
	assert.False(t, a.IsSameDay(c))
}

func TestCollidesWith(t *testing.T) {
	tests := []struct {
		name string
		a, b Event
		want bool
	}{
		{"overlap", Event{Start: at(3, 9, 0), End: at(3, 10, 0)}, Event{Start: at(3, 9, 30), End: at(3, 10, 30)}, true},
		{"contained", Event{Start: at(3, 9, 0), End: at(3, 12, 0)}, Event{Start: at(3, 10, 0), End: at(3, 11, 0)}, true},
		{"back to back", Event{Start: at(3, 9, 0), End: at(3, 10, 0)}, Event{Start: at(3, 10, 0), End: at(3, 11, 0)}, false},
		{"disjoint", Event{Start: at(3, 9, 0), End: at(3, 10, 0)}, Event{Start: at(3, 11, 0), End: at(3, 12, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.CollidesWith(tt.b))
			assert.Equal(t, tt.want, tt.b.CollidesWith(tt.a))
		})
	}
}

func TestCompareByStart(t *testing.T) {
	a := Event{UID: "a", Start: at(3, 9, 0), End: at(3, 10, 0)}
	b := Event{UID: "b", Start: at(3, 9, 0), End: at(3, 11, 0)}
	c := Event{UID: "c", Start: at(3, 8, 0), End: at(3, 12, 0)}
	d := Event{UID: "d", Start: at(3, 9, 0), End: at(3, 10, 0)}

	assert.Negative(t, CompareByStart(c, a))
	assert.Negative(t, CompareByStart(a, b))
	assert.Negative(t, CompareByStart(a, d))
	assert.Zero(t, CompareByStart(a, a))
}

func TestNewChips(t *testing.T) {
	events := []Event{{UID: "a"}, {UID: "b"}}
	chips := NewChips(events)

	assert.Len(t, chips, 2)
	assert.Equal(t, "b", chips[1].Event.UID)
	assert.Equal(t, Rect{}, chips[0].Rect)
	assert.Empty(t, NewChips(nil))
}
