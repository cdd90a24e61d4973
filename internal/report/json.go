package report

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// JSONReporter outputs structured JSON.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// jsonOutput is the top-level JSON structure.
type jsonOutput struct {
	SchemaVersion string         `json:"schema_version"`
	Tool          string         `json:"tool"`
	Target        jsonTarget     `json:"target"`
	FinalURL      string         `json:"final_url,omitempty"`
	Response      *jsonResponse  `json:"response,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Stats         jsonStats      `json:"stats"`
	Errors        []string       `json:"errors,omitempty"`
}

// jsonTarget represents the requested target in JSON.
type jsonTarget struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// jsonResponse represents the final response in JSON.
type jsonResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// jsonStats represents request timing in JSON.
type jsonStats struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	TotalRequests   int64     `json:"total_requests"`
}

// Generate writes the result as JSON to w.
func (r *JSONReporter) Generate(ctx context.Context, result *Result, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	output := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "vkrest",
		Target: jsonTarget{
			URL:    result.Target.URL,
			Method: result.Target.Method,
		},
		FinalURL: result.FinalURL,
		Data:     result.Data,
		Stats: jsonStats{
			StartTime:       result.StartTime,
			EndTime:         result.EndTime,
			DurationSeconds: result.EndTime.Sub(result.StartTime).Seconds(),
			TotalRequests:   result.RequestCount,
		},
	}

	if result.Response != nil {
		headers := result.Response.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		output.Response = &jsonResponse{
			Status:  result.Response.StatusCode,
			Headers: headers,
			Body:    result.Response.Body,
		}
	}

	if len(result.Errors) > 0 {
		output.Errors = make([]string, len(result.Errors))
		for i, e := range result.Errors {
			output.Errors[i] = e.Error()
		}
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output)
}
