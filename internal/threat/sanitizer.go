package threat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLen bounds sanitized string values when no limit is configured.
const DefaultMaxLen = 10000

var (
	// Script elements go first so their contents disappear with the tags.
	scriptBlockRe = regexp.MustCompile(`(?is)<\s*script\b[^>]*>.*?<\s*/\s*script\s*>`)
	tagFragmentRe = regexp.MustCompile(`(?i)<\s*/?\s*[a-z][^>]*>`)
	jsSchemeRe    = regexp.MustCompile(`(?i)javascript\s*:`)
	eventAttrRe   = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// Sanitizer cleans string values inside decoded payloads. It returns new
// structures and never mutates its input.
type Sanitizer struct {
	maxLen int
}

func NewSanitizer(maxLen int) *Sanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Sanitizer{maxLen: maxLen}
}

// Sanitize recursively walks maps, slices, and strings. Strings get control
// characters stripped, script and HTML tag fragments removed, and are cut
// to the configured maximum length. Everything else passes through as is.
func (s *Sanitizer) Sanitize(payload any) any {
	switch val := payload.(type) {
	case string:
		return s.SanitizeString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = s.Sanitize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.Sanitize(item)
		}
		return out
	default:
		return payload
	}
}

func (s *Sanitizer) SanitizeString(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)

	cleaned = scriptBlockRe.ReplaceAllString(cleaned, "")
	cleaned = tagFragmentRe.ReplaceAllString(cleaned, "")
	cleaned = jsSchemeRe.ReplaceAllString(cleaned, "")
	cleaned = eventAttrRe.ReplaceAllString(cleaned, "")

	if len(cleaned) > s.maxLen {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character into an invalid sequence.
		cut := s.maxLen
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}
