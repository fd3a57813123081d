package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"album_poster/internal/credential"
)

// authorize builds the album session. A configured refresh token is used
// as-is; otherwise the user is asked to open the consent page and paste the
// code it shows.
func authorize(
	ctx context.Context,
	issuer credential.Issuer,
	refreshToken string,
	in io.Reader,
	out io.Writer,
	logger *slog.Logger,
) (*credential.Session, error) {
	if refreshToken != "" {
		return credential.FromRefreshToken(ctx, issuer, refreshToken, logger)
	}

	fmt.Fprintf(out, "Open this URL in a browser and allow access to the album:\n\n%s\n\n",
		issuer.AuthCodeURL(uuid.NewString()))
	fmt.Fprint(out, "Authorization code: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("read authorization code: empty code")
	}

	return credential.Authorize(ctx, issuer, code, logger)
}
