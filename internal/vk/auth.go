package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0x6d61/vkrest/internal/rest"
)

// ErrInvalidCode is returned by LoginWithCode for an empty code.
var ErrInvalidCode = errors.New("vk: invalid code, check the code parameter is correct")

// AuthorizationError reports a failed code exchange.
type AuthorizationError struct {
	StatusCode int
	Body       string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("vk: unable to log in (status %d): %s", e.StatusCode, e.Body)
}

// tokenResponse is the body of a successful code exchange. vk.com sends
// user_id as a number; json.Number keeps it exact.
type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	UserID      json.Number `json:"user_id"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// LoginWithCode exchanges the code delivered to the redirect URI for an
// access token and stores the token and user id.
func (s *SDK) LoginWithCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrInvalidCode
	}

	params := rest.Params{
		"client_id":     s.appID,
		"client_secret": s.secret,
		"code":          code,
		"redirect_uri":  s.redirectURI,
	}

	resp, err := s.client.Request(ctx, s.endpoints.TokenURL, params, http.MethodGet)
	if err != nil {
		return fmt.Errorf("vk: exchange code: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &AuthorizationError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	var tok tokenResponse
	if err := json.Unmarshal([]byte(resp.Body), &tok); err != nil {
		return &AuthorizationError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	if tok.AccessToken == "" {
		return &AuthorizationError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	if err := s.SetAccessToken(ctx, tok.AccessToken); err != nil {
		return err
	}
	if err := s.SetUserID(ctx, tok.UserID.String()); err != nil {
		return err
	}

	s.expiresIn = 0
	if secs, err := tok.ExpiresIn.Int64(); err == nil && secs > 0 {
		s.expiresIn = time.Duration(secs) * time.Second
	}
	s.obtainedAt = time.Now()

	s.logger.Info("logged in",
		zap.String("app_id", s.appID),
		zap.String("user_id", s.userID),
		zap.Duration("expires_in", s.expiresIn),
	)
	return nil
}
