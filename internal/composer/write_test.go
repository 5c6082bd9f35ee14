// internal/composer/write_test.go
package composer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextMatches(t *testing.T) {
	msg := "Hi Jane, thanks for applying for the Backend Engineer role. I would love to connect."
	first40 := string([]rune(msg)[:40])

	tests := []struct {
		name     string
		actual   string
		expected string
		want     bool
	}{
		{"exact", "Hi Jane, thanks for applying.", "Hi Jane, thanks for applying.", true},
		{"whitespace differences", "Hi   Jane, thanks", "Hi Jane, thanks", true},
		{"editor holds extra text", "Hi Jane, thanks!", "Hi Jane, thanks", true},
		{"editor holds the first prefix characters", first40, msg, true},
		{"editor holds a short prefix", "Hi Jane", msg, false},
		{"single character", "H", msg, false},
		{"fragment from the middle", "role", msg, false},
		{"prefix one rune short", first40[:len(first40)-1], msg, false},
		{"unrelated text", "Hello world", "Hi Jane", false},
		{"empty editor", "", "Hi Jane", false},
		{"empty expectation", "Hi Jane", "", false},
		{"two paragraphs", "Line1\nLine2", "Line1\nLine2", true},
		{"paragraph with blank line", "Line1\nLine2", "Line1\n\nLine2", true},
		{"lines collapsed into one", "Line1 Line2", "Line1\nLine2", false},
		{"lines out of order", "Line2\nLine1 Line2", "Line1\nLine2", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TextMatches(tc.actual, tc.expected, 40))
		})
	}
}

func TestTextMatchesMultiLinePrefix(t *testing.T) {
	expected := "Hi Jane,\nthanks for applying for the Backend Engineer role.\nBest, Sam"

	assert.True(t, TextMatches("Hi Jane,\nthanks for applying for the Backend", expected, 30))
	assert.False(t, TextMatches("Hi Jane, thanks for applying for the Backend", expected, 30), "line break lost")
	assert.False(t, TextMatches("Hi Jane,\nthanks", expected, 30), "shorter than the prefix")
}

func TestSettledMatch(t *testing.T) {
	msg := "Hi Jane, thanks for applying for the Backend Engineer role. I would love to connect."
	truncated := string([]rune(msg)[:40]) + "…"

	assert.False(t, TextMatches(truncated, msg, 40))
	assert.True(t, SettledMatch(truncated, msg, 40))
	assert.True(t, SettledMatch("  "+msg+"  ", msg, 40))
	assert.False(t, SettledMatch(string([]rune(msg)[:39]), msg, 40))
	assert.False(t, SettledMatch("anything", "", 40))
}

func TestParagraphMarkup(t *testing.T) {
	assert.Equal(t, "<p>Hi &lt;b&gt;Jane&lt;/b&gt; &amp; co</p>", ParagraphMarkup("Hi <b>Jane</b> & co"))
	assert.Equal(t, "<p>Line1</p><p><br></p><p>Line2</p>", ParagraphMarkup("Line1\n\nLine2"))
	assert.Equal(t, 3, strings.Count(ParagraphMarkup("a\nb\nc"), "<p>"))
}
