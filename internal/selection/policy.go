// Package selection picks the next item to publish.
package selection

import (
	"context"
	"fmt"
	"math/rand"

	"album_poster/internal/domain"
)

// PublishedChecker reports whether an item already has a dedup record.
type PublishedChecker interface {
	IsPublished(ctx context.Context, itemID string) (bool, error)
}

type RandomPolicy struct {
	ledger  PublishedChecker
	shuffle func(n int, swap func(i, j int))
}

func NewRandomPolicy(ledger PublishedChecker) *RandomPolicy {
	return &RandomPolicy{
		ledger:  ledger,
		shuffle: rand.Shuffle,
	}
}

// WithShuffle replaces the permutation source, for deterministic tests.
func (p *RandomPolicy) WithShuffle(shuffle func(n int, swap func(i, j int))) *RandomPolicy {
	p.shuffle = shuffle
	return p
}

// Choose returns a uniformly random unpublished item, or nil when every
// candidate has been published. The candidates slice is left untouched.
func (p *RandomPolicy) Choose(ctx context.Context, candidates []domain.MediaItem) (*domain.MediaItem, error) {
	order := make([]domain.MediaItem, len(candidates))
	copy(order, candidates)

	p.shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	for i := range order {
		published, err := p.ledger.IsPublished(ctx, order[i].ID)
		if err != nil {
			return nil, fmt.Errorf("check item %s: %w", order[i].ID, err)
		}
		if !published {
			item := order[i]
			return &item, nil
		}
	}

	return nil, nil
}
