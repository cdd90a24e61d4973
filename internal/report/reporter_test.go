package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"text", "text", false},
		{"TEXT", "text", false},
		{"json", "json", false},
		{"Json", "json", false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := New(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%q) should fail", tt.input)
				}
				if r != nil {
					t.Errorf("New(%q) returned non-nil reporter %T", tt.input, r)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) returned error: %v", tt.input, err)
			}
			if r.Format() != tt.want {
				t.Errorf("New(%q).Format() = %q, want %q", tt.input, r.Format(), tt.want)
			}
		})
	}
}

func TestReporters_HonorCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			r, err := New(format)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			var buf bytes.Buffer
			err = r.Generate(ctx, &Result{Target: Target{URL: "http://x", Method: "GET"}}, &buf)
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Generate error = %v, want context.Canceled", err)
			}
			if buf.Len() != 0 {
				t.Errorf("Generate wrote %d bytes on a canceled context", buf.Len())
			}
		})
	}
}
