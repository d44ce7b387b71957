package fakeweb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StatusUnknown is the status code of a response whose status line does not
// look like HTTP/1.x. It fails every success range check.
const StatusUnknown = -1

var statusLine = regexp.MustCompile(`^HTTP/1\.[01] ([0-9]{3})`)

// ResponseHeaders is a parsed response header block.
type ResponseHeaders struct {
	StatusCode int
	// Lines holds the raw header lines in order, status line first.
	Lines []string
	// Values maps lower-cased header names to trimmed values. The last
	// occurrence of a repeated header wins.
	Values map[string]string
}

// Get returns the value of the named header, matched case-insensitively.
func (h ResponseHeaders) Get(name string) string {
	return h.Values[strings.ToLower(name)]
}

// ParseResponseHeaders parses a CRLF separated header block whose first line
// is the status line.
func ParseResponseHeaders(block string) (ResponseHeaders, error) {
	return ParseResponseHeaderLines(strings.Split(block, "\r\n"))
}

// ParseResponseHeaderLines parses header lines whose first element is the
// status line.
func ParseResponseHeaderLines(lines []string) (ResponseHeaders, error) {
	h := ResponseHeaders{
		StatusCode: StatusUnknown,
		Lines:      append([]string(nil), lines...),
		Values:     map[string]string{},
	}
	if len(lines) == 0 {
		return h, nil
	}
	if m := statusLine.FindStringSubmatch(lines[0]); m != nil {
		h.StatusCode, _ = strconv.Atoi(m[1])
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			return ResponseHeaders{}, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		h.Values[strings.ToLower(name)] = strings.TrimSpace(value)
	}
	return h, nil
}

func successful(code, max int) bool {
	return code >= 200 && code <= max
}
