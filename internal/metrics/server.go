package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"album_poster/internal/domain"
)

// StateReader reports the last recorded publication.
type StateReader interface {
	Get(ctx context.Context) (*domain.PublishState, error)
}

type healthResponse struct {
	Status          string     `json:"status"`
	TotalPublished  int64      `json:"total_published"`
	LastItemID      string     `json:"last_item_id,omitempty"`
	LastPublishedAt *time.Time `json:"last_published_at,omitempty"`
}

// NewRouter serves /metrics from gatherer and /healthz from the ledger state.
func NewRouter(gatherer prometheus.Gatherer, state StateReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}

		current, err := state.Get(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "ledger unavailable"})
			return
		}

		resp.TotalPublished = current.TotalPublished
		resp.LastItemID = current.LastItemID
		if !current.LastPublishedAt.IsZero() {
			resp.LastPublishedAt = &current.LastPublishedAt
		}
		writeJSON(w, http.StatusOK, resp)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	logger.Info("metrics server stopped")
	return nil
}
