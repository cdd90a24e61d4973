package vk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/go-querystring/query"
	"go.uber.org/zap"

	"github.com/0x6d61/vkrest/internal/rest"
)

// APIError is the error object vk.com returns inside a 200 response.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk: api error %d: %s", e.Code, e.Message)
}

// API calls method (for example "users.get") with params. The access token
// and API version are added unless params already carry them.
//
// The decoded body is returned as is. When it holds an "error" object the
// map is returned together with an *APIError. Numbers decode as
// json.Number.
func (s *SDK) API(ctx context.Context, method string, params rest.Params) (map[string]any, error) {
	body := make(rest.Params, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	if _, ok := body["access_token"]; !ok {
		token, err := s.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
		body["access_token"] = token
	}
	if _, ok := body["v"]; !ok && s.apiVersion != "" {
		body["v"] = s.apiVersion
	}

	s.logger.Debug("api call", zap.String("method", method), zap.Int("params", len(params)))

	resp, err := s.client.Request(ctx, s.endpoints.APIURL+method, body, http.MethodPost)
	if err != nil {
		return nil, fmt.Errorf("vk: %s: %w", method, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(resp.Body)))
	dec.UseNumber()
	var result map[string]any
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("vk: %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}

	if raw, ok := result["error"].(map[string]any); ok {
		apiErr := &APIError{}
		if code, ok := raw["error_code"].(json.Number); ok {
			n, _ := code.Int64()
			apiErr.Code = int(n)
		}
		apiErr.Message, _ = raw["error_msg"].(string)
		return result, apiErr
	}
	return result, nil
}

// usersGetParams are the users.get arguments GetUser sends.
type usersGetParams struct {
	UserIDs string `url:"user_ids"`
	Version string `url:"v,omitempty"`
}

// GetUser returns users.get for the logged in user.
func (s *SDK) GetUser(ctx context.Context) (map[string]any, error) {
	userID, err := s.UserID(ctx)
	if err != nil {
		return nil, err
	}
	params, err := encodeParams(usersGetParams{UserIDs: userID, Version: s.apiVersion})
	if err != nil {
		return nil, err
	}
	return s.API(ctx, "users.get", params)
}

// encodeParams flattens a struct tagged for go-querystring into Params.
// Only the first value of a repeated key is kept.
func encodeParams(v any) (rest.Params, error) {
	values, err := query.Values(v)
	if err != nil {
		return nil, fmt.Errorf("vk: encode params: %w", err)
	}
	params := make(rest.Params, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return params, nil
}
