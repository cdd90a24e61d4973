// Package transport provides the single-exchange HTTP layer used by the
// redirect-following REST client. It never follows redirects itself.
package transport

import "time"

// FilePrefix marks a parameter value as a reference to a local file that
// must be uploaded as a multipart file part.
const FilePrefix = "@"

// Request represents an HTTP request to be sent by the transport client.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, etc.).
	Method string

	// URL is the resolved absolute target URL, including any query string.
	URL string

	// Headers contains custom HTTP headers to include. Cookie, Referer and
	// X-HTTP-Method-Override travel here.
	Headers map[string]string

	// Params is sent as the request body for every method except GET.
	// Values prefixed with FilePrefix are uploaded as files.
	Params map[string]string

	// Timeout overrides the client-level timeout for this specific
	// request. Zero means use the client default.
	Timeout time.Duration
}

// HasFiles reports whether any parameter is a file reference.
func (r *Request) HasFiles() bool {
	for _, v := range r.Params {
		if isFileRef(v) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the Request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}

	clone := &Request{
		Method:  r.Method,
		URL:     r.URL,
		Timeout: r.Timeout,
	}

	if r.Headers != nil {
		clone.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			clone.Headers[k] = v
		}
	}

	if r.Params != nil {
		clone.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			clone.Params[k] = v
		}
	}

	return clone
}

func isFileRef(v string) bool {
	return len(v) > len(FilePrefix) && v[:len(FilePrefix)] == FilePrefix
}
