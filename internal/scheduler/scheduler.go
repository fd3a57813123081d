// Package scheduler drives the cycle: every tick either refreshes the album
// credentials or runs one publish attempt.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"album_poster/internal/config"
	"album_poster/internal/domain"
	"album_poster/internal/source/gphotos"
)

type Session interface {
	Refresh(ctx context.Context) error
	AccessToken() string
	Expired() bool
}

// Publisher runs a single publish attempt.
type Publisher interface {
	PublishOne(ctx context.Context, accessToken string) (*domain.CycleReport, error)
}

// AlbumProbe is called after a successful refresh to check the new token
// against the album.
type AlbumProbe interface {
	FetchItems(ctx context.Context, accessToken string) ([]domain.MediaItem, error)
}

type Metrics interface {
	ObserveTick(kind domain.TickKind)
	ObserveRefreshFailure()
}

type Scheduler struct {
	session         Session
	publisher       Publisher
	probe           AlbumProbe
	metrics         Metrics
	interval        time.Duration
	tickTimeout     time.Duration
	ticksPerPublish int
	tickCount       int
	logger          *slog.Logger
}

func NewScheduler(session Session, publisher Publisher, cfg config.ScheduleConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		session:         session,
		publisher:       publisher,
		interval:        cfg.TickInterval,
		tickTimeout:     cfg.TickTimeout,
		ticksPerPublish: max(cfg.TicksPerPublish, 1),
		logger:          logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) WithProbe(probe AlbumProbe) *Scheduler {
	s.probe = probe
	return s
}

func (s *Scheduler) WithMetrics(metrics Metrics) *Scheduler {
	s.metrics = metrics
	return s
}

// Start blocks until ctx is cancelled. The first tick fires one interval
// after start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.interval,
		"ticks_per_publish", s.ticksPerPublish,
		"publish_every", s.interval*time.Duration(s.ticksPerPublish),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	tickCtx := ctx
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	s.Tick(tickCtx)
}

// Tick advances the counter and runs the matching path. Publish attempts land
// on ticks K, 2K, 3K and so on; the counter resets whatever the outcome.
func (s *Scheduler) Tick(ctx context.Context) domain.TickKind {
	s.tickCount++

	kind := domain.TickRefresh
	if s.tickCount >= s.ticksPerPublish {
		kind = domain.TickPublish
		s.tickCount = 0
	}

	if s.metrics != nil {
		s.metrics.ObserveTick(kind)
	}

	if kind == domain.TickPublish {
		s.publish(ctx)
	} else {
		s.refresh(ctx)
	}
	return kind
}

func (s *Scheduler) TickCount() int {
	return s.tickCount
}

func (s *Scheduler) refresh(ctx context.Context) {
	s.logger.Info("refreshing credentials", "tick", s.tickCount, "ticks_per_publish", s.ticksPerPublish)

	if !s.refreshSession(ctx) {
		return
	}

	if s.probe == nil {
		return
	}

	items, err := s.probe.FetchItems(ctx, s.session.AccessToken())
	if err != nil {
		s.logger.Warn("album probe failed", "error", err)
		return
	}
	s.logger.Info("album probed", "items", len(items))
}

func (s *Scheduler) refreshSession(ctx context.Context) bool {
	if err := s.session.Refresh(ctx); err != nil {
		s.logger.Warn("credential refresh failed, keeping previous token", "error", err)
		if s.metrics != nil {
			s.metrics.ObserveRefreshFailure()
		}
		return false
	}
	return true
}

func (s *Scheduler) publish(ctx context.Context) {
	if s.session.Expired() {
		s.logger.Info("access token expired, refreshing before publish")
		s.refreshSession(ctx)
	}

	report, err := s.publisher.PublishOne(ctx, s.session.AccessToken())
	if err != nil {
		logger := s.logger
		if report != nil {
			logger = logger.With("cycle_id", report.CycleID)
		}
		if errors.Is(err, gphotos.ErrUnauthorized) {
			logger.Error("album source rejected credentials", "error", err)
			return
		}
		logger.Error("publish cycle failed", "error", err)
		return
	}

	s.logger.Debug("publish cycle finished",
		"cycle_id", report.CycleID,
		"outcome", report.Outcome,
		"candidates", report.Candidates,
		"duration", report.Duration,
	)
}
