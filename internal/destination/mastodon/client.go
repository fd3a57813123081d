// Package mastodon publishes staged items as Mastodon statuses.
package mastodon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-mastodon"

	"album_poster/internal/config"
	"album_poster/internal/domain"
)

const DestinationName = "Mastodon"

var ErrNotLoggedIn = errors.New("mastodon client not logged in")

type Client struct {
	client      *mastodon.Client
	cfg         config.DestinationConfig
	accessToken string
	loggedIn    bool
	logger      *slog.Logger
}

func NewClient(cfg config.DestinationConfig, logger *slog.Logger) *Client {
	client := mastodon.NewClient(&mastodon.Config{
		Server:       cfg.Server,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AccessToken:  cfg.AccessToken,
	})
	client.Timeout = cfg.Timeout
	client.UserAgent = "AlbumPoster/1.0"

	return &Client{
		client:      client,
		cfg:         cfg,
		accessToken: cfg.AccessToken,
		logger:      logger.With("destination", "mastodon", "server", cfg.Server),
	}
}

func (c *Client) Name() string {
	return DestinationName
}

// Login checks the configured access token, or obtains one with the
// password grant when only a username and password are configured.
func (c *Client) Login(ctx context.Context) error {
	c.loggedIn = false

	if c.accessToken == "" {
		c.client.Config.AccessToken = ""
		if err := c.client.Authenticate(ctx, c.cfg.Username, c.cfg.Password); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}

	account, err := c.client.GetAccountCurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}

	c.loggedIn = true
	c.logger.Debug("logged in", "account", account.Acct)
	return nil
}

// Publish uploads the payload and posts it with the caption. The returned
// status is "ok" only when the status was created.
func (c *Client) Publish(ctx context.Context, post *domain.Post) (*domain.PublishResult, error) {
	if !c.loggedIn {
		return nil, ErrNotLoggedIn
	}

	attachment, err := c.client.UploadMediaFromReader(ctx, bytes.NewReader(post.Data))
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	c.logger.Debug("media uploaded",
		"filename", post.Filename,
		"bytes", len(post.Data),
		"attachment_id", attachment.ID,
	)

	status, err := c.client.PostStatus(ctx, &mastodon.Toot{
		Status:     post.Caption,
		MediaIDs:   []mastodon.ID{attachment.ID},
		Visibility: c.cfg.Visibility,
	})
	if err != nil {
		return nil, fmt.Errorf("post status: %w", err)
	}

	return &domain.PublishResult{
		Status:   domain.PublishStatusOK,
		RemoteID: string(status.ID),
		URL:      status.URL,
	}, nil
}
