package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"album_poster/internal/config"
	"album_poster/internal/credential"
	"album_poster/internal/destination/mastodon"
	"album_poster/internal/domain"
	"album_poster/internal/metrics"
	"album_poster/internal/notify"
	"album_poster/internal/scheduler"
	"album_poster/internal/selection"
	"album_poster/internal/service"
	"album_poster/internal/source/gphotos"
	"album_poster/internal/staging"
	"album_poster/internal/storage"
)

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	logger := setupLogger("info")

	cfg, err := config.Load(configPath(c))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, nil, err
	}

	return cfg, setupLogger(cfg.LogLevel), nil
}

// pipeline is everything a publish needs, wired from config.
type pipeline struct {
	session     *credential.Session
	album       *gphotos.Source
	destination *mastodon.Client
	publisher   *service.PublishService
	stateStore  *storage.StateStore
	registry    *prometheus.Registry
	collector   *metrics.Collector
	closers     []func() error
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// newPipeline opens the ledger, authorizes the album session and builds the
// publish service. Metrics are only collected when withMetrics is set.
func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, withMetrics bool) (*pipeline, error) {
	p := &pipeline{}

	db, err := storage.Open(ctx, cfg.Ledger)
	if err != nil {
		logger.Error("failed to open ledger", "driver", cfg.Ledger.Driver, "error", err)
		return nil, err
	}
	p.closers = append(p.closers, db.Close)
	logger.Info("ledger ready", "driver", cfg.Ledger.Driver)

	ledger := storage.NewLedgerStore(db)
	p.stateStore = storage.NewStateStore(db)
	txManager := storage.NewTransactionManager(db)

	issuer := credential.NewOAuthIssuer(cfg.OAuth, &http.Client{Timeout: cfg.Album.Timeout})
	p.session, err = authorize(ctx, issuer, cfg.OAuth.RefreshToken, os.Stdin, os.Stdout, logger)
	if err != nil {
		logger.Error("authorization failed", "error", err)
		p.Close()
		return nil, err
	}
	logger.Info("authorized", "expiry", p.session.Expiry())

	p.album = gphotos.New(cfg.Album, logger)
	stager := staging.NewArea(afero.NewOsFs(), cfg.Staging.Dir, downloadClient(cfg.Staging), cfg.Staging.MaxBytes, logger)
	p.destination = mastodon.NewClient(cfg.Destination, logger)

	var notifier service.Notifier
	if cfg.Notify.Enabled {
		rabbitMQ, err := notify.NewRabbitMQ(cfg.Notify, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, rabbitMQ.Close)
		notifier = rabbitMQ
	}

	var publishMetrics service.Metrics
	if withMetrics {
		p.registry = prometheus.NewRegistry()
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		p.collector = metrics.NewCollector(p.registry)
		publishMetrics = p.collector
	}

	p.publisher = service.NewPublishService(
		p.album,
		selection.NewRandomPolicy(ledger),
		ledger,
		p.stateStore,
		txManager,
		stager,
		p.destination,
		notifier,
		publishMetrics,
		logger,
	)

	return p, nil
}

// shutdownContext is cancelled on SIGINT or SIGTERM.
func shutdownContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	return ctx, cancel
}

func run(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext(logger)
	defer cancel()

	p, err := newPipeline(ctx, cfg, logger, cfg.Metrics.Enabled)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.registry != nil {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddr, metrics.NewRouter(p.registry, p.stateStore), logger); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	sched := scheduler.NewScheduler(p.session, p.publisher, cfg.Schedule, logger)
	if cfg.Album.ProbeEnabled() {
		sched.WithProbe(p.album)
	}
	if p.collector != nil {
		sched.WithMetrics(p.collector)
	}

	logger.Info("starting album poster",
		"source", p.album.Name(),
		"destination", p.destination.Name(),
		"album_id", cfg.Album.ID,
		"tick_interval", cfg.Schedule.TickInterval,
		"publish_every", cfg.Schedule.PublishEvery(),
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		return err
	}
	return nil
}

func postNow(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := shutdownContext(logger)
	defer cancel()

	p, err := newPipeline(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer p.Close()

	publishCtx, publishCancel := context.WithTimeout(ctx, cfg.Schedule.TickTimeout)
	defer publishCancel()

	return publishNow(publishCtx, p.publisher, p.session, os.Stdout)
}

type oneShotPublisher interface {
	PublishOne(ctx context.Context, accessToken string) (*domain.CycleReport, error)
}

type accessTokenSource interface {
	AccessToken() string
}

// publishNow runs a single publish outside the schedule and prints its report.
func publishNow(ctx context.Context, publisher oneShotPublisher, tokens accessTokenSource, out io.Writer) error {
	report, err := publisher.PublishOne(ctx, tokens.AccessToken())
	if report != nil {
		printReport(out, report)
	}
	if err != nil {
		return fmt.Errorf("post now: %w", err)
	}
	return nil
}

func printReport(w io.Writer, report *domain.CycleReport) {
	fmt.Fprintf(w, "outcome:   %s\n", report.Outcome)
	if report.Item != nil {
		fmt.Fprintf(w, "item:      %s (%s)\n", report.Item.ID, report.Item.Filename)
	}
	if report.Result != nil {
		fmt.Fprintf(w, "remote id: %s\n", report.Result.RemoteID)
		if report.Result.URL != "" {
			fmt.Fprintf(w, "url:       %s\n", report.Result.URL)
		}
	}
}

func downloadClient(cfg config.StagingConfig) *http.Client {
	if cfg.AllowPrivateNetworks {
		return &http.Client{Timeout: cfg.DownloadTimeout}
	}
	return staging.NewSafeClient(cfg.DownloadTimeout)
}

func status(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.Open(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer db.Close()

	ledger := storage.NewLedgerStore(db)

	total, err := ledger.Count(ctx)
	if err != nil {
		return fmt.Errorf("count published items: %w", err)
	}

	state, err := storage.NewStateStore(db).Get(ctx)
	if err != nil {
		return fmt.Errorf("get publish state: %w", err)
	}

	var last *domain.DedupRecord
	if state.LastItemID != "" {
		last, err = ledger.Get(ctx, state.LastItemID)
		if err != nil {
			return fmt.Errorf("get last published item: %w", err)
		}
	}

	printStatus(os.Stdout, total, state, last)
	return nil
}

func printStatus(w io.Writer, total int64, state *domain.PublishState, last *domain.DedupRecord) {
	fmt.Fprintf(w, "published items: %d\n", total)
	if state.LastItemID == "" {
		fmt.Fprintln(w, "nothing published yet")
		return
	}
	fmt.Fprintf(w, "last item:       %s\n", state.LastItemID)
	fmt.Fprintf(w, "last published:  %s\n", state.LastPublishedAt.Local().Format(time.RFC1123))
	if last != nil {
		fmt.Fprintf(w, "last filename:   %s\n", last.Filename)
		fmt.Fprintf(w, "last remote id:  %s\n", last.RemoteID)
	}
}

func authURL(c *cli.Context) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}

	issuer := credential.NewOAuthIssuer(cfg.OAuth, nil)
	fmt.Println(issuer.AuthCodeURL(uuid.NewString()))
	return nil
}
