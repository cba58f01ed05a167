package policy

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// directives is a parsed Cache-Control header. Names are lower-cased and
// quoted arguments are unquoted.
type directives map[string]string

func parseCacheControl(values []string) directives {
	d := make(directives)
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, arg, _ := strings.Cut(part, "=")
			d[strings.ToLower(strings.TrimSpace(name))] = strings.Trim(strings.TrimSpace(arg), `"`)
		}
	}
	return d
}

func (d directives) has(name string) bool {
	_, ok := d[name]
	return ok
}

// seconds returns a delta-seconds directive. Present but malformed values are
// an error so a bad header never yields an accidental ttl.
func (d directives) seconds(name string) (int, bool, error) {
	arg, ok := d[name]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, true, fmt.Errorf("invalid %s value %q", name, arg)
	}
	return n, true, nil
}

// varyStorable reports whether a response's Vary header allows storing it
// under a URL-only key. Vary: * never does. Accept-Encoding is tolerated
// when the body is identity-encoded, since those bytes suit every client;
// any other varied header would serve one client's variant to the next.
func varyStorable(h http.Header) bool {
	for _, v := range h.Values("Vary") {
		for name := range strings.SplitSeq(v, ",") {
			name = strings.TrimSpace(name)
			switch {
			case name == "":
			case name == "*":
				return false
			case strings.EqualFold(name, "Accept-Encoding"):
				if ce := strings.TrimSpace(h.Get("Content-Encoding")); ce != "" && !strings.EqualFold(ce, "identity") {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}
