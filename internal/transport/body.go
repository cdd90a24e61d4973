package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	formContentType = "application/x-www-form-urlencoded"
)

// EncodeQuery form-encodes params with keys in sorted order.
func EncodeQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

// encodeBody builds the request body for non-GET methods. File references
// switch the encoding to multipart/form-data.
func encodeBody(params map[string]string, withFiles bool) (io.Reader, string, error) {
	if len(params) == 0 {
		return nil, "", nil
	}
	if !withFiles {
		return strings.NewReader(EncodeQuery(params)), formContentType, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := params[k]
		if !isFileRef(v) {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("transport: write field %q: %w", k, err)
			}
			continue
		}
		if err := writeFilePart(w, k, strings.TrimPrefix(v, FilePrefix)); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("transport: close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFilePart(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("transport: open upload %q: %w", path, err)
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("transport: create file part %q: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("transport: copy upload %q: %w", path, err)
	}
	return nil
}
