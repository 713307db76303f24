package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/syncpower/musicnews/httpclient"
	"github.com/syncpower/musicnews/logger"
)

// DefaultURL is the metadata service token endpoint.
const DefaultURL = "https://md.syncpower.jp/authenticate/v1/token"

var (
	// ErrMissingCredentials is returned without contacting the upstream when
	// the client id or secret is not configured.
	ErrMissingCredentials = errors.New("SYNCPOWER_CLIENT_ID or SYNCPOWER_CLIENT_SECRET is not set")

	// ErrInvalidResponse is returned when the upstream answers with something
	// other than a JSON token document.
	ErrInvalidResponse = errors.New("invalid token response")
)

// UpstreamError is a non-2xx answer from the token endpoint.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("auth API error (HTTP %d): %s", e.Status, e.Message)
}

// Config holds the token endpoint and client credentials.
type Config struct {
	URL          string
	ClientID     string
	ClientSecret string
}

// Token is an access token and the instant it stops being valid.
type Token struct {
	Token     string
	ExpiresAt time.Time
}

// ExpiresAtMillis returns the expiry as unix milliseconds.
func (t *Token) ExpiresAtMillis() int64 {
	return t.ExpiresAt.UnixMilli()
}

// TokenService fetches tokens and caches them until they expire.
type TokenService struct {
	client httpclient.Client
	config Config
	now    func() time.Time
	log    *zap.Logger

	mu     sync.Mutex
	cached *Token
}

// NewTokenService creates a token service. A nil client gets the default
// resty client.
func NewTokenService(client httpclient.Client, config Config, log *zap.Logger) *TokenService {
	if client == nil {
		client = httpclient.NewRestyClient(0, "")
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	return &TokenService{
		client: client,
		config: config,
		now:    time.Now,
		log:    logger.OrNop(log),
	}
}

// Token returns the cached token while it is valid, otherwise fetches a new
// one. Concurrent callers wait for a single fetch.
func (s *TokenService) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != nil && s.cached.ExpiresAt.After(now) {
		s.log.Debug("using cached token")
		return s.cached, nil
	}

	if s.config.ClientID == "" || s.config.ClientSecret == "" {
		s.log.Error("token credentials are not configured")
		return nil, ErrMissingCredentials
	}

	token, err := s.fetch(ctx, now)
	if err != nil {
		s.log.Error("token fetch failed", zap.Error(err))
		return nil, err
	}

	s.cached = token
	s.log.Info("fetched new token", zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	Token     string  `json:"token"`
	ExpiresAt float64 `json:"expires_at"`
}

func (s *TokenService) fetch(ctx context.Context, now time.Time) (*Token, error) {
	resp, err := s.client.PostJSON(ctx, s.config.URL, nil, tokenRequest{
		ClientID:     s.config.ClientID,
		ClientSecret: s.config.ClientSecret,
	})
	if err != nil {
		return nil, err
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return nil, &UpstreamError{Status: resp.StatusCode(), Message: upstreamMessage(body)}
	}

	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return nil, fmt.Errorf("%w: unexpected Content-Type %q: %s",
			ErrInvalidResponse, contentType, httpclient.Snippet(body, 200))
	}

	var data tokenResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if data.Token == "" || data.ExpiresAt <= 0 {
		return nil, fmt.Errorf("%w: token or expires_at missing", ErrInvalidResponse)
	}

	// expires_at is a lifetime in seconds
	lifetime := time.Duration(data.ExpiresAt * float64(time.Second))
	return &Token{Token: data.Token, ExpiresAt: now.Add(lifetime)}, nil
}

func upstreamMessage(body []byte) string {
	var data struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &data); err == nil && data.Message != "" {
		return data.Message
	}
	return httpclient.Snippet(body, 200)
}
