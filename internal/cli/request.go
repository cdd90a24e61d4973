package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x6d61/vkrest/internal/report"
	"github.com/0x6d61/vkrest/internal/rest"
	"github.com/0x6d61/vkrest/internal/vk"
)

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Call users.get for the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, err := a.openSDK()
			if err != nil {
				return err
			}
			if token, err := sdk.AccessToken(cmd.Context()); err != nil {
				return err
			} else if token == "" {
				return errNotLoggedIn
			}

			start := time.Now()
			data, callErr := sdk.GetUser(cmd.Context())
			return a.renderAPI(cmd, "users.get", data, start, callErr)
		},
	}
}

func newAPICmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api METHOD",
		Short: "Call an API method (e.g. wall.get) and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawParams, _ := cmd.Flags().GetStringArray("param")
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}

			sdk, err := a.openSDK()
			if err != nil {
				return err
			}

			start := time.Now()
			data, callErr := sdk.API(cmd.Context(), args[0], params)
			return a.renderAPI(cmd, args[0], data, start, callErr)
		},
	}
	cmd.Flags().StringArrayP("param", "p", nil, "Method parameter as key=value (repeatable, @path uploads a file)")
	return cmd
}

// renderAPI reports an API call. A provider error is reported together
// with the decoded body and then returned.
func (a *app) renderAPI(cmd *cobra.Command, method string, data map[string]any, start time.Time, callErr error) error {
	var apiErr *vk.APIError
	if callErr != nil && !errors.As(callErr, &apiErr) {
		return callErr
	}

	result := &report.Result{
		Target: report.Target{
			URL:    a.endpoints().APIURL + method,
			Method: http.MethodPost,
		},
		Data:      data,
		StartTime: start,
		EndTime:   time.Now(),
	}
	if a.client != nil {
		result.FinalURL = a.client.URL()
		result.Response = a.client.LastResponse()
		result.RequestCount = a.client.Transport().Stats().TotalRequests
	}
	if apiErr != nil {
		result.Errors = []error{apiErr}
	}

	if err := a.render(cmd, result); err != nil {
		return err
	}
	return callErr
}

func newGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Request a URL, following redirects with cookie and referer state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, _ := cmd.Flags().GetString("request")
			rawParams, _ := cmd.Flags().GetStringArray("param")
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}

			client, err := a.newClient()
			if err != nil {
				return err
			}

			start := time.Now()
			resp, reqErr := client.Request(cmd.Context(), args[0], params, method)
			if reqErr != nil && !errors.Is(reqErr, rest.ErrTooManyRedirects) {
				return reqErr
			}

			result := &report.Result{
				Target: report.Target{
					URL:    args[0],
					Method: strings.ToUpper(method),
				},
				FinalURL:     client.URL(),
				Response:     resp,
				StartTime:    start,
				EndTime:      time.Now(),
				RequestCount: client.Transport().Stats().TotalRequests,
			}
			if reqErr != nil {
				result.Errors = []error{reqErr}
			}
			if err := a.render(cmd, result); err != nil {
				return err
			}
			return reqErr
		},
	}
	cmd.Flags().StringP("request", "X", http.MethodGet, "HTTP method (GET, POST, PUT, DELETE, ...)")
	cmd.Flags().StringArrayP("param", "p", nil, "Request parameter as key=value (repeatable, @path uploads a file)")
	return cmd
}

// render writes result in the --format chosen by the user.
func (a *app) render(cmd *cobra.Command, result *report.Result) error {
	format, _ := cmd.Flags().GetString("format")
	reporter, err := report.New(format)
	if err != nil {
		return fmt.Errorf("unknown report format %q: %w", format, err)
	}
	if tr, ok := reporter.(*report.TextReporter); ok {
		tr.Verbose, _ = cmd.Flags().GetInt("verbose")
	}

	out, done, err := output(cmd)
	if err != nil {
		return err
	}
	defer done()

	if err := reporter.Generate(cmd.Context(), result, out); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	return nil
}

// parseParams parses "key=value" strings into request parameters. The
// value may be empty; the key may not.
func parseParams(raw []string) (rest.Params, error) {
	params := make(rest.Params, len(raw))
	for _, p := range raw {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", p)
		}
		params[key] = value
	}
	return params, nil
}
