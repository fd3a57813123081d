package credential

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"album_poster/internal/config"
)

// Issuer hands out tokens for the album API.
type Issuer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthIssuer is an Issuer backed by an OAuth2 authorization server, Google's
// by default.
type OAuthIssuer struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewOAuthIssuer(cfg config.OAuthConfig, httpClient *http.Client) *OAuthIssuer {
	endpoint := endpoints.Google
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &OAuthIssuer{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the consent page URL. Offline access is requested so
// that the exchange also yields a refresh token.
func (i *OAuthIssuer) AuthCodeURL(state string) string {
	return i.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (i *OAuthIssuer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := i.config.Exchange(i.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

func (i *OAuthIssuer) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// a token without an access token is never valid, so the source always
	// goes to the token endpoint
	src := i.config.TokenSource(i.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return token, nil
}

func (i *OAuthIssuer) withClient(ctx context.Context) context.Context {
	if i.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, i.httpClient)
}
