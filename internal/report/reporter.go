// Package report renders the outcome of a vkrest request, either a raw
// HTTP exchange or a decoded API call, as terminal text or JSON.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/0x6d61/vkrest/internal/rest"
)

// Target is what the user asked for.
type Target struct {
	URL    string
	Method string
}

// Result is everything a reporter can show about one command run.
type Result struct {
	Target Target
	// FinalURL is the URL of the last hop after redirects.
	FinalURL string
	// Response is the final parsed response, nil when the request failed.
	Response *rest.Response
	// Data is the decoded body of an API call, nil for plain requests.
	Data map[string]any

	StartTime    time.Time
	EndTime      time.Time
	RequestCount int64
	Errors       []error
}

// Reporter generates output in a specific format.
type Reporter interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// Generate writes the formatted result to w.
	Generate(ctx context.Context, result *Result, w io.Writer) error
}

// New creates a reporter by format name ("text" or "json").
// The format name is case-insensitive.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}
