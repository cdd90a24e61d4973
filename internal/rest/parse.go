package rest

import (
	"regexp"
	"strings"
)

const headerBodySeparator = "\r\n\r\n"

// continuePattern matches an interim "100 Continue" status block.
var continuePattern = regexp.MustCompile(`(?i)http/[0-9].[0-9] 100 continue`)

// ParseRaw splits a raw HTTP response into its header map and body.
//
// Leading "HTTP/x.y 100 Continue" blocks are discarded. Each remaining
// header line is split on its first ':' and both halves are trimmed; a line
// without ':' is kept as a name with an empty value, which is how the status
// line ends up in the map. Later duplicates overwrite earlier ones. Output
// without a blank-line separator is treated as headers only.
func ParseRaw(raw string) (map[string]string, string) {
	var (
		head    string
		body    string
		hasBody bool
		rest    = raw
	)

	for {
		head, body, hasBody = strings.Cut(rest, headerBodySeparator)
		if !continuePattern.MatchString(head) {
			break
		}
		if !hasBody {
			// A lone continue block with nothing after it.
			head = ""
			break
		}
		rest = body
	}

	headers := parseHeaderBlock(head)
	if !hasBody {
		return headers, ""
	}
	return headers, strings.TrimSpace(body)
}

func parseHeaderBlock(block string) map[string]string {
	headers := make(map[string]string)
	block = strings.TrimSpace(block)
	if block == "" {
		return headers
	}
	for _, line := range strings.Split(block, "\n") {
		name, value, _ := strings.Cut(line, ":")
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return headers
}
