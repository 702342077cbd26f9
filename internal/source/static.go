// Package source provides in-process event loaders.
package source

import (
	"context"
	"sync"

	"weekcal/internal/model"
	"weekcal/internal/period"
)

// Static serves a fixed set of events, bucketed by the period their start
// falls into.
type Static struct {
	indexer period.Indexer

	mu     sync.RWMutex
	events []model.Event
}

func NewStatic(indexer period.Indexer, events []model.Event) *Static {
	s := &Static{indexer: indexer}
	s.Replace(events)
	return s
}

// Replace swaps the event set. Callers usually follow it with a refresh
// request so the cache picks the change up.
func (s *Static) Replace(events []model.Event) {
	cp := append([]model.Event(nil), events...)
	s.mu.Lock()
	s.events = cp
	s.mu.Unlock()
}

// Load returns the events starting within period p, in insertion order.
func (s *Static) Load(ctx context.Context, p int) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start, end := s.indexer.Bounds(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if !ev.Start.Before(start) && ev.Start.Before(end) {
			out = append(out, ev)
		}
	}
	return out, nil
}
