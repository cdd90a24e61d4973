package vk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/vkrest/internal/rest"
	"github.com/0x6d61/vkrest/internal/session"
	"github.com/0x6d61/vkrest/internal/testutil"
	"github.com/0x6d61/vkrest/internal/transport"
)

const redirectURI = "http://www.example.com/SimpleVkExample?redirect=1"

func newProvider(t *testing.T) *testutil.Provider {
	t.Helper()
	p := testutil.NewProvider(testutil.ProviderConfig{RedirectURI: redirectURI})
	t.Cleanup(p.Close)
	return p
}

func endpointsOf(p *testutil.Provider) Endpoints {
	return Endpoints{
		AuthorizeURL: p.AuthorizeURL(),
		TokenURL:     p.TokenURL(),
		APIURL:       p.APIURL(),
	}
}

func newSDK(t *testing.T, p *testutil.Provider, store session.Store, opts ...Option) *SDK {
	t.Helper()
	opts = append([]Option{
		WithSecret(testutil.DefaultAppSecret),
		WithRedirectURI(redirectURI),
		WithStore(store),
		WithEndpoints(endpointsOf(p)),
	}, opts...)
	sdk, err := New(testutil.DefaultAppID, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { sdk.Close() })
	return sdk
}

func TestLoginURL(t *testing.T) {
	t.Run("contains authorization parameters", func(t *testing.T) {
		sut, err := New("123", WithRedirectURI(redirectURI))
		require.NoError(t, err)
		defer sut.Close()

		got := sut.LoginURL("offline,wall", "st4te")

		u, err := url.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, "oauth.vk.com", u.Host)
		assert.Equal(t, "/authorize", u.Path)
		q := u.Query()
		assert.Equal(t, "123", q.Get("client_id"))
		assert.Equal(t, redirectURI, q.Get("redirect_uri"))
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "offline,wall", q.Get("scope"))
		assert.Equal(t, "st4te", q.Get("state"))
	})

	t.Run("empty state and scope are omitted", func(t *testing.T) {
		sut, err := New("123")
		require.NoError(t, err)
		defer sut.Close()

		u, err := url.Parse(sut.LoginURL("", ""))
		require.NoError(t, err)

		q := u.Query()
		assert.False(t, q.Has("state"))
		assert.False(t, q.Has("scope"))
	})

	t.Run("provider accepts the url", func(t *testing.T) {
		p := newProvider(t)
		sut := newSDK(t, p, session.NewMemoryStore())
		noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}}

		resp, err := noFollow.Get(sut.LoginURL("users", "abc"))
		require.NoError(t, err)
		resp.Body.Close()

		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, testutil.DefaultCode, loc.Query().Get("code"))
		assert.Equal(t, "abc", loc.Query().Get("state"))
	})
}

func TestLoginWithCode(t *testing.T) {
	t.Run("stores token and user id", func(t *testing.T) {
		p := newProvider(t)
		store := session.NewMemoryStore()
		sut := newSDK(t, p, store)
		ctx := context.Background()

		err := sut.LoginWithCode(ctx, testutil.DefaultCode)

		require.NoError(t, err)
		token, ok, err := store.Get(ctx, "VkSDK.access_token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, testutil.DefaultAccessToken, token)
		userID, ok, err := store.Get(ctx, "VkSDK.user_id")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", userID)
		assert.Equal(t, testutil.DefaultExpiresIn, int64(sut.ExpiresIn().Seconds()))
	})

	t.Run("empty code", func(t *testing.T) {
		p := newProvider(t)
		sut := newSDK(t, p, session.NewMemoryStore())

		err := sut.LoginWithCode(context.Background(), "  ")

		assert.ErrorIs(t, err, ErrInvalidCode)
		assert.Empty(t, p.Calls())
	})

	t.Run("rejected code", func(t *testing.T) {
		p := newProvider(t)
		store := session.NewMemoryStore()
		sut := newSDK(t, p, store)
		ctx := context.Background()

		err := sut.LoginWithCode(ctx, "stale")

		var authErr *AuthorizationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
		assert.Contains(t, authErr.Body, "invalid_grant")
		token, err := sut.AccessToken(ctx)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("wrong secret", func(t *testing.T) {
		p := newProvider(t)
		sut := newSDK(t, p, session.NewMemoryStore(), WithSecret("nope"))

		err := sut.LoginWithCode(context.Background(), testutil.DefaultCode)

		var authErr *AuthorizationError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Body, "invalid_client")
	})

	t.Run("success body without token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"user_id": 5}`)) //nolint:errcheck
		}))
		defer srv.Close()
		sut, err := New("1", WithEndpoints(Endpoints{TokenURL: srv.URL, APIURL: srv.URL}))
		require.NoError(t, err)
		defer sut.Close()

		err = sut.LoginWithCode(context.Background(), "c")

		var authErr *AuthorizationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusOK, authErr.StatusCode)
	})
}

func TestSessionState(t *testing.T) {
	t.Run("lazy read from store", func(t *testing.T) {
		p := newProvider(t)
		store := session.NewMemoryStore()
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "VkSDK.access_token", "restored"))
		require.NoError(t, store.Set(ctx, "VkSDK.user_id", "99"))
		sut := newSDK(t, p, store)

		token, err := sut.AccessToken(ctx)
		require.NoError(t, err)
		userID, err := sut.UserID(ctx)
		require.NoError(t, err)

		assert.Equal(t, "restored", token)
		assert.Equal(t, "99", userID)
	})

	t.Run("set writes through", func(t *testing.T) {
		p := newProvider(t)
		store := session.NewMemoryStore()
		ctx := context.Background()
		sut := newSDK(t, p, store)

		require.NoError(t, sut.SetAccessToken(ctx, "t"))
		require.NoError(t, sut.SetUserID(ctx, "7"))

		other := newSDK(t, p, store)
		token, err := other.AccessToken(ctx)
		require.NoError(t, err)
		userID, err := other.UserID(ctx)
		require.NoError(t, err)
		assert.Equal(t, "t", token)
		assert.Equal(t, "7", userID)
	})

	t.Run("custom session key", func(t *testing.T) {
		p := newProvider(t)
		store := session.NewMemoryStore()
		ctx := context.Background()
		sut := newSDK(t, p, store, WithSessionKey("Other"))

		require.NoError(t, sut.SetAccessToken(ctx, "t"))

		_, ok, err := store.Get(ctx, "Other.access_token")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("logout clears token", func(t *testing.T) {
		p := newProvider(t)
		store := session.NewMemoryStore()
		ctx := context.Background()
		sut := newSDK(t, p, store)
		require.NoError(t, sut.LoginWithCode(ctx, testutil.DefaultCode))

		require.NoError(t, sut.Logout(ctx))

		token, err := sut.AccessToken(ctx)
		require.NoError(t, err)
		assert.Empty(t, token)
		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("token", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		sut := newSDK(t, p, session.NewMemoryStore())
		require.NoError(t, sut.LoginWithCode(ctx, testutil.DefaultCode))

		tok, err := sut.Token(ctx)

		require.NoError(t, err)
		assert.Equal(t, testutil.DefaultAccessToken, tok.AccessToken)
		assert.False(t, tok.Expiry.IsZero())
		assert.Equal(t, "1", tok.Extra("user_id"))
	})
}

func TestAPI(t *testing.T) {
	t.Run("injects token and version", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		sut := newSDK(t, p, session.NewMemoryStore())
		require.NoError(t, sut.SetAccessToken(ctx, testutil.DefaultAccessToken))

		got, err := sut.API(ctx, "wall.get", rest.Params{"owner_id": "5"})

		require.NoError(t, err)
		require.Contains(t, got, "response")
		calls := p.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "wall.get", calls[0].Method)
		assert.Equal(t, testutil.DefaultAccessToken, calls[0].Params.Get("access_token"))
		assert.Equal(t, DefaultAPIVersion, calls[0].Params.Get("v"))
		assert.Equal(t, "5", calls[0].Params.Get("owner_id"))
		assert.Empty(t, calls[0].Override)
	})

	t.Run("explicit params win", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		sut := newSDK(t, p, session.NewMemoryStore())
		require.NoError(t, sut.SetAccessToken(ctx, "ignored"))

		_, err := sut.API(ctx, "echo.params", rest.Params{
			"access_token": testutil.DefaultAccessToken,
			"v":            "5.0",
		})

		require.NoError(t, err)
		calls := p.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, testutil.DefaultAccessToken, calls[0].Params.Get("access_token"))
		assert.Equal(t, "5.0", calls[0].Params.Get("v"))
	})

	t.Run("caller params are not modified", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		sut := newSDK(t, p, session.NewMemoryStore())
		params := rest.Params{"owner_id": "5"}

		_, _ = sut.API(ctx, "wall.get", params)

		assert.Equal(t, rest.Params{"owner_id": "5"}, params)
	})

	t.Run("provider error object", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		sut := newSDK(t, p, session.NewMemoryStore())
		require.NoError(t, sut.SetAccessToken(ctx, "bad"))

		got, err := sut.API(ctx, "users.get", nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 5, apiErr.Code)
		assert.Contains(t, apiErr.Message, "authorization failed")
		assert.Contains(t, got, "error")
	})

	t.Run("numbers decode exactly", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		sut := newSDK(t, p, session.NewMemoryStore())
		require.NoError(t, sut.SetAccessToken(ctx, testutil.DefaultAccessToken))

		got, err := sut.API(ctx, "wall.get", nil)

		require.NoError(t, err)
		resp, ok := got["response"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, json.Number("1"), resp["count"])
	})

	t.Run("non json body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html>maintenance</html>")) //nolint:errcheck
		}))
		defer srv.Close()
		sut, err := New("1", WithEndpoints(Endpoints{APIURL: srv.URL}))
		require.NoError(t, err)
		defer sut.Close()

		_, err = sut.API(context.Background(), "users.get", nil)

		assert.ErrorContains(t, err, "decode response")
	})

	t.Run("too many redirects", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Location", "/again")
			w.WriteHeader(http.StatusFound)
		}))
		defer srv.Close()
		tr, err := transport.New(transport.KindNet, transport.ClientOptions{})
		require.NoError(t, err)
		sut, err := New("1",
			WithEndpoints(Endpoints{APIURL: srv.URL + "/method/"}),
			WithClient(rest.New(tr, rest.WithMaxRedirects(2))),
		)
		require.NoError(t, err)
		defer sut.Close()

		_, err = sut.API(context.Background(), "users.get", nil)

		assert.ErrorIs(t, err, rest.ErrTooManyRedirects)
		assert.Zero(t, sut.Client().RedirectCount())
	})
}

func TestGetUser(t *testing.T) {
	p := testutil.NewProvider(testutil.ProviderConfig{RedirectURI: redirectURI, UserID: 42})
	defer p.Close()
	ctx := context.Background()
	sut := newSDK(t, p, session.NewMemoryStore())
	require.NoError(t, sut.LoginWithCode(ctx, testutil.DefaultCode))

	got, err := sut.GetUser(ctx)

	require.NoError(t, err)
	users, ok := got["response"].([]any)
	require.True(t, ok)
	require.Len(t, users, 1)
	user := users[0].(map[string]any)
	assert.Equal(t, json.Number("42"), user["id"])
	assert.Equal(t, "Pavel", user["first_name"])
	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "users.get", calls[0].Method)
	assert.Equal(t, "42", calls[0].Params.Get("user_ids"))
}

func TestEncodeParams(t *testing.T) {
	got, err := encodeParams(usersGetParams{UserIDs: "1,2"})

	require.NoError(t, err)
	assert.Equal(t, rest.Params{"user_ids": "1,2"}, got)
}
