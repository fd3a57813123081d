// Package staging holds the one payload that is in flight between download
// and publish.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/spf13/afero"

	"album_poster/internal/domain"
)

var ErrTooLarge = errors.New("payload exceeds size limit")

type Area struct {
	fs         afero.Fs
	dir        string
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

func NewArea(fs afero.Fs, dir string, httpClient *http.Client, maxBytes int64, logger *slog.Logger) *Area {
	return &Area{
		fs:         fs,
		dir:        dir,
		httpClient: httpClient,
		maxBytes:   maxBytes,
		logger:     logger.With("component", "staging"),
	}
}

// NewSafeClient returns a download client that refuses private, loopback and
// metadata addresses.
func NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(cfg).Client
}

// PathFor is the fixed staging location for an item.
func (a *Area) PathFor(item *domain.MediaItem) string {
	ext := item.FileExtension
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = "bin"
	}
	return filepath.Join(a.dir, "staged."+ext)
}

// Stage downloads the item into the staging directory. A leftover file from
// an earlier run is removed first, a partial file is removed on failure.
func (a *Area) Stage(ctx context.Context, item *domain.MediaItem) (*domain.StagedFile, error) {
	if err := a.fs.MkdirAll(a.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	path := a.PathFor(item)
	if err := a.remove(path); err != nil {
		return nil, fmt.Errorf("remove leftover file: %w", err)
	}

	size, err := a.download(ctx, item.DownloadURL, path)
	if err != nil {
		if rmErr := a.remove(path); rmErr != nil {
			a.logger.Warn("failed to remove partial download", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("download item %s: %w", item.ID, err)
	}

	a.logger.Debug("item staged", "item_id", item.ID, "path", path, "bytes", size)

	return &domain.StagedFile{ItemID: item.ID, Path: path, Size: size}, nil
}

func (a *Area) download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	f, err := a.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	body := io.Reader(resp.Body)
	if a.maxBytes > 0 {
		body = io.LimitReader(resp.Body, a.maxBytes+1)
	}

	n, err := io.Copy(f, body)
	if err != nil {
		return n, fmt.Errorf("write file: %w", err)
	}
	if a.maxBytes > 0 && n > a.maxBytes {
		return n, ErrTooLarge
	}

	return n, nil
}

func (a *Area) Read(file *domain.StagedFile) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, file.Path)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	return data, nil
}

// Release removes the staged file. A file that is already gone is not an
// error.
func (a *Area) Release(file *domain.StagedFile) error {
	if file == nil {
		return nil
	}
	if err := a.remove(file.Path); err != nil {
		return fmt.Errorf("release staged file: %w", err)
	}
	return nil
}

func (a *Area) remove(path string) error {
	err := a.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
