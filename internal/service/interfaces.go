package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"album_poster/internal/domain"
)

type AlbumSource interface {
	Name() string
	FetchItems(ctx context.Context, accessToken string) ([]domain.MediaItem, error)
}

type Selector interface {
	Choose(ctx context.Context, candidates []domain.MediaItem) (*domain.MediaItem, error)
}

type Ledger interface {
	IsPublished(ctx context.Context, itemID string) (bool, error)
	MarkPublished(ctx context.Context, record *domain.DedupRecord) error
}

type StateStore interface {
	Get(ctx context.Context) (*domain.PublishState, error)
	Update(ctx context.Context, state *domain.PublishState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Stager interface {
	Stage(ctx context.Context, item *domain.MediaItem) (*domain.StagedFile, error)
	Read(file *domain.StagedFile) ([]byte, error)
	Release(file *domain.StagedFile) error
}

type Destination interface {
	Name() string
	Login(ctx context.Context) error
	Publish(ctx context.Context, post *domain.Post) (*domain.PublishResult, error)
}

type Notifier interface {
	NotifyPublished(ctx context.Context, event *domain.PublishedEvent) error
	Close() error
}

type Metrics interface {
	ObservePublish(outcome domain.Outcome, duration time.Duration)
}
