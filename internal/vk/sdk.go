// Package vk is a small client for the vk.com OAuth flow and REST API.
//
// An SDK builds the login URL, exchanges the returned code for an access
// token and calls API methods with it. The token and user id are kept in a
// session.Store so they survive between runs.
package vk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/0x6d61/vkrest/internal/rest"
	"github.com/0x6d61/vkrest/internal/session"
	"github.com/0x6d61/vkrest/internal/transport"
)

const (
	// DefaultAPIVersion is sent as "v" when the caller does not set one.
	DefaultAPIVersion = "5.131"
	// DefaultSessionKey namespaces the stored token and user id.
	DefaultSessionKey = "VkSDK"
)

const (
	accessTokenField = "access_token"
	userIDField      = "user_id"
)

// Endpoints are the provider URLs. APIURL must end with a slash.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	APIURL       string
}

// DefaultEndpoints point at vk.com.
var DefaultEndpoints = Endpoints{
	AuthorizeURL: "https://oauth.vk.com/authorize",
	TokenURL:     "https://oauth.vk.com/access_token",
	APIURL:       "https://api.vk.com/method/",
}

// SDK holds the app credentials, the HTTP client and the current token.
// It is not safe for concurrent use.
type SDK struct {
	appID       string
	secret      string
	redirectURI string
	apiVersion  string
	sessionKey  string
	endpoints   Endpoints

	client *rest.Client
	store  session.Store
	logger *zap.Logger

	accessToken string
	userID      string
	expiresIn   time.Duration
	obtainedAt  time.Time
}

// Option configures an SDK.
type Option func(*SDK)

// WithSecret sets the client secret needed by LoginWithCode.
func WithSecret(secret string) Option {
	return func(s *SDK) { s.secret = secret }
}

// WithRedirectURI sets the URL the provider sends the code to.
func WithRedirectURI(uri string) Option {
	return func(s *SDK) { s.redirectURI = uri }
}

// WithStore sets where the token and user id are persisted.
func WithStore(store session.Store) Option {
	return func(s *SDK) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClient sets the browsing client used for every request.
func WithClient(c *rest.Client) Option {
	return func(s *SDK) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SDK) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEndpoints overrides the provider URLs.
func WithEndpoints(e Endpoints) Option {
	return func(s *SDK) { s.endpoints = e }
}

// WithAPIVersion sets the API version sent with every call. An empty
// version leaves "v" to the caller.
func WithAPIVersion(v string) Option {
	return func(s *SDK) { s.apiVersion = v }
}

// WithSessionKey sets the prefix of the stored keys.
func WithSessionKey(key string) Option {
	return func(s *SDK) {
		if key != "" {
			s.sessionKey = key
		}
	}
}

// New creates an SDK for appID. Without WithClient a net/http transport
// is created; without WithStore the token lives in memory only.
func New(appID string, opts ...Option) (*SDK, error) {
	s := &SDK{
		appID:      appID,
		apiVersion: DefaultAPIVersion,
		sessionKey: DefaultSessionKey,
		endpoints:  DefaultEndpoints,
		logger:     zap.NewNop(),
		store:      session.NewMemoryStore(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !strings.HasSuffix(s.endpoints.APIURL, "/") {
		s.endpoints.APIURL += "/"
	}

	if s.client == nil {
		t, err := transport.New(transport.KindNet, transport.ClientOptions{})
		if err != nil {
			return nil, fmt.Errorf("vk: create transport: %w", err)
		}
		s.client = rest.New(t, rest.WithLogger(s.logger))
	}

	return s, nil
}

// AppID returns the client id.
func (s *SDK) AppID() string { return s.appID }

// Client returns the browsing client.
func (s *SDK) Client() *rest.Client { return s.client }

// Close releases the HTTP client. The store belongs to the caller.
func (s *SDK) Close() error {
	return s.client.Close()
}

func (s *SDK) oauthConfig(scope string) *oauth2.Config {
	cfg := &oauth2.Config{
		ClientID:     s.appID,
		ClientSecret: s.secret,
		RedirectURL:  s.redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.endpoints.AuthorizeURL,
			TokenURL: s.endpoints.TokenURL,
		},
	}
	// vk.com expects a comma separated scope; oauth2 joins Scopes with
	// spaces, so the whole string goes in as one element.
	if scope != "" {
		cfg.Scopes = []string{scope}
	}
	return cfg
}

// LoginURL returns the URL the user must open to authorize the app.
// scope is a comma separated permission list such as "offline,wall".
// An empty state is omitted.
func (s *SDK) LoginURL(scope, state string) string {
	return s.oauthConfig(scope).AuthCodeURL(state)
}

// Token returns the current token as an oauth2.Token. Expiry is zero when
// the token does not expire or was restored from the store.
func (s *SDK) Token(ctx context.Context) (*oauth2.Token, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{AccessToken: access}
	if s.expiresIn > 0 && !s.obtainedAt.IsZero() {
		tok.Expiry = s.obtainedAt.Add(s.expiresIn)
	}
	userID, err := s.UserID(ctx)
	if err != nil {
		return nil, err
	}
	return tok.WithExtra(map[string]any{userIDField: userID}), nil
}

// ExpiresIn is the lifetime reported by the last code exchange. Zero means
// unknown or non-expiring.
func (s *SDK) ExpiresIn() time.Duration { return s.expiresIn }

func (s *SDK) key(field string) string {
	return s.sessionKey + "." + field
}

// AccessToken returns the token, reading the store the first time.
// An empty string means the user is not logged in.
func (s *SDK) AccessToken(ctx context.Context) (string, error) {
	if s.accessToken == "" {
		v, ok, err := s.store.Get(ctx, s.key(accessTokenField))
		if err != nil {
			return "", fmt.Errorf("vk: read access token: %w", err)
		}
		if ok {
			s.accessToken = v
		}
	}
	return s.accessToken, nil
}

// SetAccessToken keeps token in memory and in the store.
func (s *SDK) SetAccessToken(ctx context.Context, token string) error {
	s.accessToken = token
	if err := s.store.Set(ctx, s.key(accessTokenField), token); err != nil {
		return fmt.Errorf("vk: store access token: %w", err)
	}
	return nil
}

// UserID returns the user id, reading the store the first time.
func (s *SDK) UserID(ctx context.Context) (string, error) {
	if s.userID == "" {
		v, ok, err := s.store.Get(ctx, s.key(userIDField))
		if err != nil {
			return "", fmt.Errorf("vk: read user id: %w", err)
		}
		if ok {
			s.userID = v
		}
	}
	return s.userID, nil
}

// SetUserID keeps id in memory and in the store.
func (s *SDK) SetUserID(ctx context.Context, id string) error {
	s.userID = id
	if err := s.store.Set(ctx, s.key(userIDField), id); err != nil {
		return fmt.Errorf("vk: store user id: %w", err)
	}
	return nil
}

// Logout forgets the token and user id in memory and in the store.
func (s *SDK) Logout(ctx context.Context) error {
	s.accessToken, s.userID = "", ""
	s.expiresIn, s.obtainedAt = 0, time.Time{}
	for _, field := range []string{accessTokenField, userIDField} {
		if err := s.store.Delete(ctx, s.key(field)); err != nil {
			return fmt.Errorf("vk: logout: %w", err)
		}
	}
	s.logger.Info("logged out", zap.String("app_id", s.appID))
	return nil
}
