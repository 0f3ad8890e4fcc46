package threat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	s := NewSanitizer(0)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"control characters stripped", "a\x00b\x01c\x1fd", "abcd"},
		{"newline and tab survive", "line one\n\tline two", "line one\n\tline two"},
		{"script block removed with contents", "before<script>alert(1)</script>after", "beforeafter"},
		{"html tags stripped", "<b>bold</b> move", "bold move"},
		{"javascript scheme removed", "javascript:alert(1)", "alert(1)"},
		{"event handler removed", "x onerror=alert(1)", "x alert(1)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.SanitizeString(tc.in))
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	s := NewSanitizer(8)
	assert.Equal(t, "12345678", s.SanitizeString(strings.Repeat("12345678", 4)))
}

func TestSanitizeTruncatesAtRuneBoundary(t *testing.T) {
	s := NewSanitizer(8)

	// Each snowman is 3 bytes; a byte-index cut at 8 would split the third.
	got := s.SanitizeString(strings.Repeat("☃", 4))
	assert.Equal(t, strings.Repeat("☃", 2), got)
	assert.True(t, utf8.ValidString(got))
	assert.NotContains(t, got, "�")
}

func TestSanitizeWalksWithoutMutating(t *testing.T) {
	s := NewSanitizer(0)
	original := map[string]any{
		"name":  "<b>alice</b>",
		"age":   30,
		"tags":  []any{"one\x00", "two"},
		"inner": map[string]any{"bio": "hi<script>x</script>"},
	}

	cleaned, ok := s.Sanitize(original).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "alice", cleaned["name"])
	assert.Equal(t, 30, cleaned["age"])
	assert.Equal(t, []any{"one", "two"}, cleaned["tags"])
	assert.Equal(t, map[string]any{"bio": "hi"}, cleaned["inner"])

	// The input payload is untouched.
	assert.Equal(t, "<b>alice</b>", original["name"])
	assert.Equal(t, "one\x00", original["tags"].([]any)[0])
}
