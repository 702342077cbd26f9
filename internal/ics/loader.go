package ics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/period"
)

const defaultEntriesTTL = time.Minute

// Loader answers period loads from a set of ICS feeds. Parsed entries are
// memoised for a short TTL because one fetch cycle asks for up to three
// neighbouring periods back to back.
type Loader struct {
	fetcher *Fetcher
	feeds   []Feed
	indexer period.Indexer
	loc     *time.Location
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	entries   []Entry
	fetchedAt time.Time
}

// LoaderOptions configures NewLoader.
type LoaderOptions struct {
	Location *time.Location
	// TTL of the parsed-entries memo. Zero means one minute; negative
	// disables the memo.
	TTL time.Duration
}

func NewLoader(fetcher *Fetcher, feeds []Feed, indexer period.Indexer, opts LoaderOptions) *Loader {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.TTL == 0 {
		opts.TTL = defaultEntriesTTL
	}
	return &Loader{
		fetcher: fetcher,
		feeds:   feeds,
		indexer: indexer,
		loc:     opts.Location,
		ttl:     opts.TTL,
		now:     time.Now,
	}
}

// Invalidate drops the memoised entries so the next load refetches.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.entries = nil
	l.fetchedAt = time.Time{}
	l.mu.Unlock()
}

// Load returns the events starting in period p, ordered by start.
func (l *Loader) Load(ctx context.Context, p int) ([]model.Event, error) {
	entries, err := l.loadEntries(ctx)
	if err != nil {
		return nil, err
	}

	start, end := l.indexer.Bounds(p)
	events, truncated, err := Expand(entries, ExpandConfig{
		Location:   l.loc,
		RangeStart: start,
		RangeEnd:   end,
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(events, model.CompareByStart)

	appLog.Debug("ics period loaded",
		"period", p,
		"range_start", start.Format(time.DateOnly),
		"range_end", end.Format(time.DateOnly),
		"events", len(events),
		"truncated", len(truncated),
	)
	return events, nil
}

func (l *Loader) loadEntries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ttl > 0 && l.entries != nil && l.now().Sub(l.fetchedAt) < l.ttl {
		return l.entries, nil
	}
	if len(l.feeds) == 0 {
		return []Entry{}, nil
	}

	payloads, errs := l.fetcher.FetchAll(ctx, l.feeds)
	if len(payloads) == 0 {
		return nil, fmt.Errorf("ics: no feed available: %w", errors.Join(errs...))
	}

	entries := make([]Entry, 0)
	for _, p := range payloads {
		parsed, err := ParseICS(p.Feed, p.Body, l.loc)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", p.Feed.ID)
			continue
		}
		entries = append(entries, parsed...)
	}

	l.entries = entries
	l.fetchedAt = l.now()
	return entries, nil
}
