package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 50
)

// TextReporter outputs plain terminal text.
type TextReporter struct {
	// Verbose controls detail level: 0=status and body, 1=+timing, 2=+headers.
	Verbose int
}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// Generate writes the formatted result to w.
func (r *TextReporter) Generate(ctx context.Context, result *Result, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}

	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "%s %s\n", result.Target.Method, result.Target.URL)
	fmt.Fprintln(b, doubleBar)

	if result.FinalURL != "" && result.FinalURL != result.Target.URL {
		fmt.Fprintf(b, "Final URL: %s\n", result.FinalURL)
	}
	if result.Response != nil {
		fmt.Fprintf(b, "Status:    %d\n", result.Response.StatusCode)
	}
	if r.Verbose >= 1 {
		duration := result.EndTime.Sub(result.StartTime)
		fmt.Fprintf(b, "Duration:  %.1fs\n", duration.Seconds())
		fmt.Fprintf(b, "Requests:  %d\n", result.RequestCount)
	}

	if r.Verbose >= 2 && result.Response != nil && len(result.Response.Headers) > 0 {
		fmt.Fprintln(b, singleBar)
		names := make([]string, 0, len(result.Response.Headers))
		for name := range result.Response.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if v := result.Response.Headers[name]; v != "" {
				fmt.Fprintf(b, "%s: %s\n", name, v)
			} else {
				fmt.Fprintln(b, name)
			}
		}
	}

	switch {
	case result.Data != nil:
		fmt.Fprintln(b, singleBar)
		data, err := json.MarshalIndent(result.Data, "", "  ")
		if err != nil {
			return fmt.Errorf("report: encode data: %w", err)
		}
		b.Write(data)
		b.WriteByte('\n')
	case result.Response != nil && result.Response.Body != "":
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, result.Response.Body)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(b, "  - %s\n", e.Error())
		}
	}

	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}
