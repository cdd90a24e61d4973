package transport

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Response is the raw result of one HTTP exchange.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Raw holds the status line, the header block, a blank line and the
	// body, exactly as the redirecting client expects to parse them.
	Raw []byte

	// Duration is the precise round-trip time for the request.
	Duration time.Duration

	// Protocol is the protocol version (e.g., "HTTP/1.1").
	Protocol string
}

// RawString returns the raw response as a string.
func (r *Response) RawString() string {
	return string(r.Raw)
}

// renderRaw serializes a status line, headers and body into the wire-like
// layout "HTTP/x.y CODE Text\r\nName: value\r\n...\r\n\r\nbody". Every
// value of a repeated header gets its own line.
func renderRaw(protocol string, status int, header http.Header, body []byte) []byte {
	var b bytes.Buffer

	text := http.StatusText(status)
	if text == "" {
		text = "status code " + strconv.Itoa(status)
	}
	fmt.Fprintf(&b, "%s %d %s\r\n", protocol, status, text)

	// http.Header.Write emits keys in sorted order.
	_ = header.Write(&b)
	b.WriteString("\r\n")
	b.Write(body)

	return b.Bytes()
}
