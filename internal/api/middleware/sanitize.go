package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/JGeek00/crowdsec-monitor-api/internal/util"
)

const maxLoggedValue = 200

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-api-token":         {},
	"x-auth-token":        {},
	"x-forwarded-for":     {},
}

// SanitizeHeaders returns a copy of h safe for logging: credentials are
// redacted, other values stripped of control characters and truncated.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		out[k] = sanitizeValues(vals)
	}
	return out
}

// SanitizeQuery prepares list filters (scenario, ip_owner...) for logging.
func SanitizeQuery(q url.Values) map[string][]string {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string][]string, len(q))
	for k, vals := range q {
		out[util.SanitizeForLog(k)] = sanitizeValues(vals)
	}
	return out
}

// SanitizePath strips the query string and control characters from a path.
func SanitizePath(p string) string {
	if i := strings.IndexByte(p, '?'); i != -1 {
		p = p[:i]
	}
	return truncate(util.SanitizeForLog(p))
}

func sanitizeValues(vals []string) []string {
	out := util.SanitizeAllForLog(vals)
	for i := range out {
		out[i] = truncate(out[i])
	}
	return out
}

func truncate(s string) string {
	if len(s) > maxLoggedValue {
		return s[:maxLoggedValue]
	}
	return s
}
