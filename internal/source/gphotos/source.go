// Package gphotos reads the candidate set from a Google Photos album.
package gphotos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"album_poster/internal/config"
	"album_poster/internal/domain"
)

const SourceName = "Google Photos"

// ErrUnauthorized means the access token was rejected. Retrying with the
// same token will not help.
var ErrUnauthorized = errors.New("album source rejected credentials")

// StatusError is returned for any non-200 answer from the album API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

type Source struct {
	httpClient     *http.Client
	baseURL        string
	albumID        string
	pageSize       int
	maxPages       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg config.AlbumConfig, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		albumID:        cfg.ID,
		pageSize:       cfg.PageSize,
		maxPages:       cfg.MaxPages,
		maxAttempts:    max(cfg.Retry.MaxAttempts, 1),
		initialBackoff: cfg.Retry.InitialBackoff,
		maxBackoff:     cfg.Retry.MaxBackoff,
		logger:         logger.With("source", "gphotos", "album_id", cfg.ID),
	}
}

func (s *Source) Name() string {
	return SourceName
}

// FetchItems returns the album contents in source order. Items without an id
// or a download URL are dropped.
func (s *Source) FetchItems(ctx context.Context, accessToken string) ([]domain.MediaItem, error) {
	var all []APIMediaItem
	pageToken := ""

	for page := 0; page < s.maxPages; page++ {
		resp, err := s.fetchPage(ctx, accessToken, pageToken)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		all = append(all, resp.MediaItems...)

		s.logger.Debug("fetched page",
			"page", page,
			"items", len(resp.MediaItems),
			"total", len(all),
		)

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return s.transform(all), nil
}

func (s *Source) fetchPage(ctx context.Context, accessToken, pageToken string) (*SearchResponse, error) {
	body, err := json.Marshal(SearchRequest{
		AlbumID:   s.albumID,
		PageSize:  s.pageSize,
		PageToken: pageToken,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp *SearchResponse

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err = s.doRequest(ctx, accessToken, body)
		if err == nil {
			return resp, nil
		}

		if !retryable(ctx, err) || attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, err
}

func (s *Source) doRequest(ctx context.Context, accessToken string, body []byte) (*SearchResponse, error) {
	endpoint := s.baseURL + "/v1/mediaItems:search"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", "AlbumPoster/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp)}
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &searchResp, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func (s *Source) transform(items []APIMediaItem) []domain.MediaItem {
	result := make([]domain.MediaItem, 0, len(items))

	for _, it := range items {
		if it.ID == "" || it.BaseURL == "" {
			s.logger.Warn("skipping incomplete media item",
				"item_id", it.ID,
				"filename", it.Filename,
			)
			continue
		}

		result = append(result, domain.MediaItem{
			ID:            it.ID,
			DownloadURL:   it.BaseURL,
			Caption:       it.Description,
			Filename:      it.Filename,
			MimeType:      it.MimeType,
			FileExtension: fileExtension(it.Filename, it.MimeType),
		})
	}

	return result
}

// fileExtension takes the extension from the filename, then from the MIME
// subtype. Anything that is not a plain token falls back to "bin".
func fileExtension(filename, mimeType string) string {
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")); validExtension(ext) {
		return ext
	}
	if _, sub, ok := strings.Cut(mimeType, "/"); ok {
		sub, _, _ = strings.Cut(sub, ";")
		if sub = strings.ToLower(strings.TrimSpace(sub)); validExtension(sub) {
			return sub
		}
	}
	return "bin"
}

func validExtension(ext string) bool {
	if ext == "" || len(ext) > 16 {
		return false
	}
	for _, r := range ext {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '+':
		default:
			return false
		}
	}
	return true
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	// transport failures are retried, decode failures are not
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func readErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return strings.TrimSpace(string(data))
}
