package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"album_poster/internal/domain"
)

var ErrPublishRejected = errors.New("destination rejected post")

// PublishService runs one fetch, choose, stage, publish and record pass.
type PublishService struct {
	source      AlbumSource
	selector    Selector
	ledger      Ledger
	state       StateStore
	txManager   TransactionManager
	stager      Stager
	destination Destination
	notifier    Notifier
	metrics     Metrics
	now         func() time.Time
	logger      *slog.Logger
}

func NewPublishService(
	source AlbumSource,
	selector Selector,
	ledger Ledger,
	state StateStore,
	txManager TransactionManager,
	stager Stager,
	destination Destination,
	notifier Notifier,
	metrics Metrics,
	logger *slog.Logger,
) *PublishService {
	return &PublishService{
		source:      source,
		selector:    selector,
		ledger:      ledger,
		state:       state,
		txManager:   txManager,
		stager:      stager,
		destination: destination,
		notifier:    notifier,
		metrics:     metrics,
		now:         time.Now,
		logger:      logger.With("component", "publish"),
	}
}

// PublishOne publishes at most one item. Running out of unpublished items is
// reported through the outcome, not as an error. The returned report is never
// nil.
func (s *PublishService) PublishOne(ctx context.Context, accessToken string) (*domain.CycleReport, error) {
	startTime := time.Now()
	report := &domain.CycleReport{
		CycleID: uuid.NewString(),
		Outcome: domain.OutcomeFailed,
	}
	logger := s.logger.With("cycle_id", report.CycleID)

	defer func() {
		report.Duration = time.Since(startTime)
		if s.metrics != nil {
			s.metrics.ObservePublish(report.Outcome, report.Duration)
		}
	}()

	items, err := s.source.FetchItems(ctx, accessToken)
	if err != nil {
		return report, fmt.Errorf("fetch items: %w", err)
	}
	report.Candidates = len(items)

	logger.Debug("fetched candidates", "source", s.source.Name(), "count", len(items))

	item, err := s.selector.Choose(ctx, items)
	if err != nil {
		return report, fmt.Errorf("choose item: %w", err)
	}
	if item == nil {
		report.Outcome = domain.OutcomeNoneAvailable
		logger.Info("nothing to post", "candidates", len(items))
		return report, nil
	}

	report.Item = item
	logger = logger.With("item_id", item.ID)
	logger.Info("posting item", "filename", item.Filename, "destination", s.destination.Name())

	result, err := s.stageAndPublish(ctx, item, logger)
	if err != nil {
		return report, err
	}
	report.Result = result

	if !result.OK() {
		return report, fmt.Errorf("%w: status %q", ErrPublishRejected, result.Status)
	}

	publishedAt := s.now().UTC()
	if err := s.record(ctx, item, result, publishedAt); err != nil {
		// the post is live but may be repeated in a later cycle
		logger.Error("published but not recorded", "remote_id", result.RemoteID, "error", err)
		return report, fmt.Errorf("record published item: %w", err)
	}

	report.Outcome = domain.OutcomePublished
	logger.Info("item published", "remote_id", result.RemoteID, "url", result.URL)

	s.notify(ctx, logger, &domain.PublishedEvent{
		ItemID:      item.ID,
		Filename:    item.Filename,
		Caption:     item.Caption,
		RemoteID:    result.RemoteID,
		URL:         result.URL,
		PublishedAt: publishedAt,
	})

	return report, nil
}

// stageAndPublish owns the staged file: it is released on every return path.
func (s *PublishService) stageAndPublish(ctx context.Context, item *domain.MediaItem, logger *slog.Logger) (*domain.PublishResult, error) {
	file, err := s.stager.Stage(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("stage item: %w", err)
	}
	defer func() {
		if err := s.stager.Release(file); err != nil {
			logger.Warn("failed to remove staged file", "path", file.Path, "error", err)
		}
	}()

	if err := s.destination.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	data, err := s.stager.Read(file)
	if err != nil {
		return nil, err
	}

	result, err := s.destination.Publish(ctx, &domain.Post{
		Data:     data,
		Filename: item.Filename,
		Caption:  item.Caption,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	return result, nil
}

func (s *PublishService) record(ctx context.Context, item *domain.MediaItem, result *domain.PublishResult, publishedAt time.Time) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		err := s.ledger.MarkPublished(txCtx, &domain.DedupRecord{
			ItemID:      item.ID,
			Filename:    item.Filename,
			RemoteID:    result.RemoteID,
			PublishedAt: publishedAt,
		})
		if err != nil {
			return fmt.Errorf("mark published: %w", err)
		}

		state, err := s.state.Get(txCtx)
		if err != nil {
			return fmt.Errorf("get publish state: %w", err)
		}

		state.LastItemID = item.ID
		state.LastPublishedAt = publishedAt
		state.TotalPublished++

		if err := s.state.Update(txCtx, state); err != nil {
			return fmt.Errorf("update publish state: %w", err)
		}
		return nil
	})
}

func (s *PublishService) notify(ctx context.Context, logger *slog.Logger, event *domain.PublishedEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyPublished(ctx, event); err != nil {
		logger.Warn("failed to send published event", "error", err)
	}
}
