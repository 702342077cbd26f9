package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekcal/internal/model"
	"weekcal/internal/period"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//weekcal//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var marchFeed = calendar(
	"BEGIN:VEVENT",
	"UID:standup",
	"SUMMARY:Standup",
	"DTSTART:20250303T090000Z",
	"DTEND:20250303T091500Z",
	"RRULE:FREQ=DAILY;COUNT=5",
	"EXDATE:20250305T090000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:standup",
	"SUMMARY:Standup (moved)",
	"RECURRENCE-ID:20250306T090000Z",
	"DTSTART:20250306T100000Z",
	"DTEND:20250306T101500Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday",
	"SUMMARY:Holiday",
	"DTSTART;VALUE=DATE:20250304",
	"DTEND;VALUE=DATE:20250305",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:april",
	"SUMMARY:Review",
	"DTSTART:20250401T120000Z",
	"DTEND:20250401T130000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"SUMMARY:No UID",
	"DTSTART:20250310T120000Z",
	"END:VEVENT",
)

type feedServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newFeedServer(t *testing.T, body []byte) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func TestParseICS(t *testing.T) {
	entries, err := ParseICS(Feed{ID: "work"}, marchFeed, time.UTC)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	standup := entries[0]
	assert.Equal(t, "standup", standup.UID)
	assert.Equal(t, "work", standup.Feed.ID)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", standup.RRule)
	assert.True(t, standup.Start.Equal(time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)))
	require.Len(t, standup.ExDates, 1)
	assert.True(t, standup.ExDates[0].Equal(time.Date(2025, time.March, 5, 9, 0, 0, 0, time.UTC)))

	moved := entries[1]
	require.NotNil(t, moved.RecurrenceID)
	assert.True(t, moved.RecurrenceID.Equal(time.Date(2025, time.March, 6, 9, 0, 0, 0, time.UTC)))

	holiday := entries[2]
	assert.True(t, holiday.AllDay)
	assert.Equal(t, time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC), holiday.Start)
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), holiday.End)
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS(Feed{}, []byte("  \r\n"), time.UTC)
	assert.Error(t, err)
}

func TestExpandBucketsByStart(t *testing.T) {
	entries, err := ParseICS(Feed{ID: "work"}, marchFeed, time.UTC)
	require.NoError(t, err)

	events, truncated, err := Expand(entries, ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, truncated)

	starts := make(map[string][]time.Time)
	for _, ev := range events {
		starts[ev.UID] = append(starts[ev.UID], ev.Start)
	}
	assert.Equal(t, []time.Time{
		time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 4, 9, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 6, 10, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 7, 9, 0, 0, 0, time.UTC),
	}, starts["standup"])
	assert.Len(t, starts["holiday"], 1)
	assert.NotContains(t, starts, "april")
}

func TestExpandCapsOccurrences(t *testing.T) {
	entries, err := ParseICS(Feed{ID: "work"}, marchFeed, time.UTC)
	require.NoError(t, err)

	events, truncated, err := Expand(entries, ExpandConfig{
		Location:    time.UTC,
		RangeStart:  time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:    time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		MaxPerEntry: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"standup"}, truncated)
	assert.Len(t, events, 3)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	_, _, err := Expand(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestFetcherUsesValidatorsAndFallsBack(t *testing.T) {
	srv := newFeedServer(t, marchFeed)
	f := NewFetcher(t.TempDir(), srv.Client())
	feed := Feed{ID: "work", URL: srv.URL + "/private/token.ics"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, marchFeed, first.Body)

	second, err := f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, marchFeed, second.Body)
	assert.EqualValues(t, 2, srv.hits.Load())

	srv.Close()
	third, err := f.Fetch(ctx, feed)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, marchFeed, third.Body)
}

func TestFetcherFailsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	_, err := f.Fetch(context.Background(), Feed{ID: "x", URL: srv.URL})
	assert.Error(t, err)

	payloads, errs := f.FetchAll(context.Background(), []Feed{{ID: "x", URL: srv.URL}, {ID: "empty"}})
	assert.Empty(t, payloads)
	assert.Len(t, errs, 2)
}

func TestLoaderLoadsPeriodsAndMemoisesEntries(t *testing.T) {
	srv := newFeedServer(t, marchFeed)
	idx := period.Month{Location: time.UTC}
	l := NewLoader(NewFetcher(t.TempDir(), srv.Client()), []Feed{{ID: "work", URL: srv.URL}}, idx, LoaderOptions{Location: time.UTC})
	ctx := context.Background()

	march := idx.Index(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	events, err := l.Load(ctx, march)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "standup", events[0].UID)
	assert.Equal(t, "holiday", events[1].UID)
	assert.True(t, events[1].AllDay)
	assert.Equal(t, "Standup (moved)", events[3].Summary)

	april, err := l.Load(ctx, march+1)
	require.NoError(t, err)
	require.Len(t, april, 1)
	assert.Equal(t, "april", april[0].UID)

	feb, err := l.Load(ctx, march-1)
	require.NoError(t, err)
	assert.Empty(t, feb)
	assert.EqualValues(t, 1, srv.hits.Load())

	l.Invalidate()
	_, err = l.Load(ctx, march)
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.hits.Load())
}

func TestLoaderFailsWhenNoFeedAnswers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	l := NewLoader(NewFetcher(t.TempDir(), srv.Client()), []Feed{{ID: "work", URL: srv.URL}}, period.Month{}, LoaderOptions{})
	_, err := l.Load(context.Background(), 24300)
	assert.ErrorContains(t, err, "no feed available")
}

func TestLoaderWithoutFeeds(t *testing.T) {
	l := NewLoader(NewFetcher(t.TempDir(), nil), nil, period.Month{}, LoaderOptions{})
	events, err := l.Load(context.Background(), 24300)
	require.NoError(t, err)
	assert.Equal(t, []model.Event{}, events)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/u/secret.ics?token=abc"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
