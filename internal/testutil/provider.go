// Package testutil provides a fake vk.com provider for tests: the OAuth
// authorize and access_token endpoints, a handful of API methods and a few
// redirect chains for exercising the browsing client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
)

// Provider defaults used when ProviderConfig leaves a field empty.
const (
	DefaultAppID       = "4242"
	DefaultAppSecret   = "s3cr3t"
	DefaultCode        = "good-code"
	DefaultAccessToken = "token-abc"
	DefaultUserID      = int64(1)
	DefaultExpiresIn   = int64(86400)
)

// ProviderConfig describes the single app and user the fake provider knows.
type ProviderConfig struct {
	AppID       string
	AppSecret   string
	RedirectURI string
	Code        string
	AccessToken string
	UserID      int64
	ExpiresIn   int64
}

// Call is one recorded API method invocation.
type Call struct {
	Method   string
	Params   url.Values
	Override string
}

// Provider is a running fake provider. Close it after use.
type Provider struct {
	*httptest.Server

	cfg   ProviderConfig
	mu    sync.Mutex
	calls []Call
}

// NewProvider starts a fake provider. The handlers are:
//
//	GET  /authorize           302 to redirect_uri with code and state
//	GET  /access_token        token exchange
//	POST /method/{name}       users.get, wall.get, echo.params
//	GET  /redirect/{n}        n relative redirects, then 200 "done"
//	GET  /absolute/{n}        same with absolute Location values
//	GET  /loop                redirects to itself forever
//	ANY  /echo                reflects method, headers and params as JSON
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	if cfg.AppSecret == "" {
		cfg.AppSecret = DefaultAppSecret
	}
	if cfg.Code == "" {
		cfg.Code = DefaultCode
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = DefaultAccessToken
	}
	if cfg.UserID == 0 {
		cfg.UserID = DefaultUserID
	}
	if cfg.ExpiresIn == 0 {
		cfg.ExpiresIn = DefaultExpiresIn
	}

	p := &Provider{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", p.handleAuthorize)
	mux.HandleFunc("GET /access_token", p.handleAccessToken)
	mux.HandleFunc("POST /method/{name}", p.handleMethod)
	mux.HandleFunc("GET /redirect/{n}", p.handleRedirect(false))
	mux.HandleFunc("GET /absolute/{n}", p.handleRedirect(true))
	mux.HandleFunc("GET /loop", handleLoop)
	mux.HandleFunc("/echo", handleEcho)

	p.Server = httptest.NewServer(mux)
	return p
}

// Config returns the effective configuration, defaults filled in.
func (p *Provider) Config() ProviderConfig { return p.cfg }

// AuthorizeURL is the fake authorization endpoint.
func (p *Provider) AuthorizeURL() string { return p.URL + "/authorize" }

// TokenURL is the fake token endpoint.
func (p *Provider) TokenURL() string { return p.URL + "/access_token" }

// APIURL is the method base URL, with a trailing slash.
func (p *Provider) APIURL() string { return p.URL + "/method/" }

// Calls returns the API calls received so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *Provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != p.cfg.AppID || q.Get("response_type") != "code" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": "client_id is incorrect",
		})
		return
	}

	target, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || target.String() == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": "redirect_uri is incorrect",
		})
		return
	}
	values := target.Query()
	values.Set("code", p.cfg.Code)
	if state := q.Get("state"); state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (p *Provider) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != p.cfg.AppID || q.Get("client_secret") != p.cfg.AppSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_client",
			"error_description": "client_secret is incorrect",
		})
		return
	}
	if q.Get("code") != p.cfg.Code || q.Get("redirect_uri") != p.cfg.RedirectURI {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code is invalid or expired.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": p.cfg.AccessToken,
		"user_id":      p.cfg.UserID,
		"expires_in":   p.cfg.ExpiresIn,
	})
}

func (p *Provider) handleMethod(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
		writeJSON(w, http.StatusBadRequest, apiError(8, "Invalid request: "+err.Error()))
		return
	}

	name := r.PathValue("name")
	params := r.PostForm

	p.mu.Lock()
	p.calls = append(p.calls, Call{
		Method:   name,
		Params:   params,
		Override: r.Header.Get("X-HTTP-Method-Override"),
	})
	p.mu.Unlock()

	if params.Get("access_token") != p.cfg.AccessToken {
		writeJSON(w, http.StatusOK, apiError(5, "User authorization failed: invalid access_token (4)."))
		return
	}

	switch name {
	case "users.get":
		id := p.cfg.UserID
		if ids := params.Get("user_ids"); ids != "" {
			parsed, err := strconv.ParseInt(ids, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusOK, apiError(113, "Invalid user id"))
				return
			}
			id = parsed
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"response": []map[string]any{{
				"id":         id,
				"first_name": "Pavel",
				"last_name":  "Durov",
			}},
		})
	case "wall.get":
		owner := params.Get("owner_id")
		if owner == "" {
			owner = strconv.FormatInt(p.cfg.UserID, 10)
		}
		ownerID, _ := strconv.ParseInt(owner, 10, 64)
		writeJSON(w, http.StatusOK, map[string]any{
			"response": map[string]any{
				"count": 1,
				"items": []map[string]any{{
					"id":       1,
					"owner_id": ownerID,
					"text":     "hello",
				}},
			},
		})
	case "echo.params":
		flat := make(map[string]string, len(params))
		for k := range params {
			flat[k] = params.Get(k)
		}
		writeJSON(w, http.StatusOK, map[string]any{"response": flat})
	default:
		writeJSON(w, http.StatusOK, apiError(3, "Unknown method passed."))
	}
}

// handleRedirect sends n redirects, each setting a hop cookie, before a
// final 200 response.
func (p *Provider) handleRedirect(absolute bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.PathValue("n"))
		if err != nil || n < 0 {
			http.Error(w, "bad hop count", http.StatusBadRequest)
			return
		}
		if n == 0 {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("done")) //nolint:errcheck
			return
		}

		prefix := "/redirect/"
		if absolute {
			prefix = p.URL + "/absolute/"
		}
		w.Header().Set("Set-Cookie", "hop="+strconv.Itoa(n))
		w.Header().Set("Location", prefix+strconv.Itoa(n-1))
		w.WriteHeader(http.StatusFound)
	}
}

func handleLoop(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Location", "/loop")
	w.WriteHeader(http.StatusFound)
}

// EchoResponse is the JSON body written by /echo.
type EchoResponse struct {
	Method   string            `json:"method"`
	Override string            `json:"override"`
	Cookie   string            `json:"cookie"`
	Referer  string            `json:"referer"`
	Query    map[string]string `json:"query"`
	Form     map[string]string `json:"form"`
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil && err != http.ErrNotMultipart {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flatten := func(v url.Values) map[string]string {
		out := make(map[string]string, len(v))
		for k := range v {
			out[k] = v.Get(k)
		}
		return out
	}

	writeJSON(w, http.StatusOK, EchoResponse{
		Method:   r.Method,
		Override: r.Header.Get("X-HTTP-Method-Override"),
		Cookie:   r.Header.Get("Cookie"),
		Referer:  r.Header.Get("Referer"),
		Query:    flatten(r.URL.Query()),
		Form:     flatten(r.PostForm),
	})
}

func apiError(code int, msg string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"error_code": code,
			"error_msg":  msg,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
