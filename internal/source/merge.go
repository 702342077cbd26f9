package source

import (
	"context"
	"fmt"

	"weekcal/internal/model"
)

// Loader is the period-load contract every source satisfies.
type Loader interface {
	Load(ctx context.Context, p int) ([]model.Event, error)
}

// Merge concatenates the answers of several loaders. Any failing loader
// fails the whole load.
type Merge []Loader

func (m Merge) Load(ctx context.Context, p int) ([]model.Event, error) {
	out := make([]model.Event, 0)
	for i, l := range m {
		events, err := l.Load(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("source: loader %d: %w", i, err)
		}
		out = append(out, events...)
	}
	return out, nil
}
