// Package threat scans and cleans structured request input. Detection and
// sanitization are independent passes: Detect never mutates, Sanitize
// never blocks, so callers can sanitize-and-continue on low-risk fields
// while hard-blocking on detection for high-risk ones.
package threat

import (
	"fmt"
	"regexp"
)

// Match describes the first malicious value found in a payload. Value is
// kept verbatim for forensic review; it must never be echoed to clients.
type Match struct {
	Field    string `json:"field"`
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
	Value    string `json:"value"`
}

type rule struct {
	category string
	re       *regexp.Regexp
}

// The rule set is fixed and heuristic. Patterns are kept narrow enough
// that ordinary prose and identifiers do not trip them.
var rules = []rule{
	{"sql_injection", regexp.MustCompile(`(?i)\bunion\b\s+(all\s+)?select\b`)},
	{"sql_injection", regexp.MustCompile(`(?i)'\s*(or|and)\b[^']*=`)},
	{"sql_injection", regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|truncate)\s`)},
	{"sql_injection", regexp.MustCompile(`(?i)\bexec(ute)?\s*\(`)},
	{"xss", regexp.MustCompile(`(?i)<\s*script\b`)},
	{"xss", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"xss", regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|submit)\s*=`)},
	{"xss", regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`)},
	{"path_traversal", regexp.MustCompile(`(?i)(\.\./|\.\.\\|%2e%2e[/\\%])`)},
	{"shell_metachars", regexp.MustCompile("`[^`]+`")},
	{"shell_metachars", regexp.MustCompile(`\$\([^)]*\)`)},
	{"shell_metachars", regexp.MustCompile(`(?i)(;|\|\|?|&&)\s*(rm|cat|curl|wget|sh|bash|nc|chmod|python|perl)\b`)},
	{"template_injection", regexp.MustCompile(`\{\{[\s\S]*\}\}`)},
	{"template_injection", regexp.MustCompile(`\$\{[\s\S]*\}`)},
	{"template_injection", regexp.MustCompile(`<%[\s\S]*%>`)},
	{"ldap_injection", regexp.MustCompile(`\(\s*[|&!]\s*\(`)},
	{"ldap_injection", regexp.MustCompile(`\*\s*\)\s*\(`)},
}

// Detect walks a decoded payload (maps, slices, strings) and returns the
// first string value matching any rule, or nil when the payload is clean.
// Non-string leaves pass the scan.
func Detect(payload any) *Match {
	return detect("", payload)
}

// DetectString scans a single named value, used for query parameters and
// path segments that never go through JSON decoding.
func DetectString(field, value string) *Match {
	for _, r := range rules {
		if r.re.MatchString(value) {
			return &Match{
				Field:    field,
				Category: r.category,
				Pattern:  r.re.String(),
				Value:    value,
			}
		}
	}
	return nil
}

func detect(path string, v any) *Match {
	switch val := v.(type) {
	case string:
		return DetectString(path, val)
	case map[string]any:
		for k, item := range val {
			if m := detect(joinPath(path, k), item); m != nil {
				return m
			}
		}
	case []any:
		for i, item := range val {
			if m := detect(fmt.Sprintf("%s[%d]", path, i), item); m != nil {
				return m
			}
		}
	}
	return nil
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
