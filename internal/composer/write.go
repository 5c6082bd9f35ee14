// internal/composer/write.go
package composer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applicant-courier/internal/observability"
)

// strategy is one way of getting text into the editor.
type strategy struct {
	name string
	// applies reports whether the strategy can carry text at all.
	applies func(text string) bool
	write   func(ctx context.Context, l *Lifecycle, id int64, text string) error
}

var strategies = []strategy{
	{
		name:    "insert-text",
		applies: func(text string) bool { return !strings.Contains(text, "\n") },
		write: func(ctx context.Context, l *Lifecycle, id int64, text string) error {
			return l.page.InsertText(ctx, id, text)
		},
	},
	{
		name:    "paragraphs",
		applies: func(string) bool { return true },
		write: func(ctx context.Context, l *Lifecycle, id int64, text string) error {
			if err := l.page.ClearEditor(ctx, id); err != nil {
				return err
			}
			return l.page.SetParagraphs(ctx, id, ParagraphMarkup(text))
		},
	},
	{
		name:    "typing",
		applies: func(string) bool { return true },
		write: func(ctx context.Context, l *Lifecycle, id int64, text string) error {
			if err := l.page.ClearEditor(ctx, id); err != nil {
				return err
			}
			if err := l.page.Focus(ctx, id); err != nil {
				return err
			}
			return l.pacer.Type(ctx, id, text)
		},
	},
}

// write gets the message into the editor and proves it is there. Each attempt runs the
// strategies in order until one reads back; between attempts the editor is re-focused.
func (l *Lifecycle) write(ctx context.Context, sess *Session) error {
	for attempt := 1; attempt <= l.cfg.WriteAttempts; attempt++ {
		if attempt > 1 {
			// The framework may have stolen focus; a failed focus shows up in the next write.
			_ = l.page.Focus(ctx, sess.Editor)
			if err := l.pacer.ActionDelay(ctx); err != nil {
				return err
			}
		}

		ok, err := l.writeOnce(ctx, sess)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		sess.logger.Debug("Write attempt did not verify.", observability.Attempt(attempt))

		// Give the editor a moment to process the events, then accept a settled read-back.
		if err := l.pacer.ActionDelay(ctx); err != nil {
			return err
		}
		actual, err := l.readEditor(ctx, sess.Editor)
		if err != nil {
			return err
		}
		if SettledMatch(actual, sess.Message, l.cfg.VerifyPrefix) {
			sess.logger.Debug("Editor content settled after a retry.", observability.Attempt(attempt))
			return nil
		}
	}

	actual, _ := l.readEditor(ctx, sess.Editor)
	sess.logger.Warn("Editor rejected every write.", zap.String("content", truncate(actual, 200)))
	return fmt.Errorf("%w: editor did not accept the message after %d attempts", ErrVerification, l.cfg.WriteAttempts)
}

func (l *Lifecycle) writeOnce(ctx context.Context, sess *Session) (bool, error) {
	for _, st := range strategies {
		if !st.applies(sess.Message) {
			continue
		}
		if err := st.write(ctx, l, sess.Editor, sess.Message); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, fmt.Errorf("write with %s: %w", st.name, err)
		}
		actual, err := l.readEditor(ctx, sess.Editor)
		if err != nil {
			return false, err
		}
		if TextMatches(actual, sess.Message, l.cfg.VerifyPrefix) {
			sess.logger.Debug("Message written.", zap.String("strategy", st.name))
			return true, nil
		}
	}
	return false, nil
}

// readEditor returns the rendered text of the editor. An editor that left the document is
// a missing element.
func (l *Lifecycle) readEditor(ctx context.Context, id int64) (string, error) {
	snap, ok := l.res.Capture(ctx)
	if !ok {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", nil
	}
	n, ok := snap.Node(id)
	if !ok {
		return "", notFound("message editor (detached)")
	}
	return n.InnerText(), nil
}

// ParagraphMarkup renders text as one <p> per line, escaping markup and keeping empty lines
// as <p><br></p>.
func ParagraphMarkup(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("<p>")
		if line == "" {
			b.WriteString("<br>")
		} else {
			b.WriteString(html.EscapeString(line))
		}
		b.WriteString("</p>")
	}
	return b.String()
}

// Normalize collapses whitespace runs into single spaces and trims.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TextMatches reports whether the editor's rendered text carries the expected message.
// After whitespace normalization the read-back must hold the whole message, or be a prefix of
// it at least min(prefix, len(expected)) runes long. Multi-line messages must keep their lines
// on distinct rendered lines, in order.
func TextMatches(actual, expected string, prefix int) bool {
	rawActual := strings.TrimSpace(actual)
	rawExpected := strings.TrimSpace(expected)
	if rawActual == "" || rawExpected == "" {
		return false
	}
	a, e := Normalize(rawActual), Normalize(rawExpected)
	full := strings.Contains(a, e)
	if !full {
		need := utf8.RuneCountInString(e)
		if prefix > 0 && prefix < need {
			need = prefix
		}
		if !strings.HasPrefix(e, a) || utf8.RuneCountInString(a) < need {
			return false
		}
	}
	if !strings.Contains(rawExpected, "\n") {
		return true
	}
	got, want := nonEmptyLines(rawActual), nonEmptyLines(rawExpected)
	if full {
		return linesInOrder(got, want)
	}
	return linesPrefix(got, want)
}

// linesInOrder reports whether each wanted line sits in its own rendered line, in order.
func linesInOrder(got, want []string) bool {
	j := 0
	for _, w := range want {
		for j < len(got) && !strings.Contains(got[j], w) {
			j++
		}
		if j == len(got) {
			return false
		}
		j++
	}
	return true
}

// linesPrefix reports whether got is want cut short inside its last rendered line.
func linesPrefix(got, want []string) bool {
	if len(got) == 0 || len(got) > len(want) {
		return false
	}
	last := len(got) - 1
	for i := 0; i < last; i++ {
		if got[i] != want[i] {
			return false
		}
	}
	return strings.HasPrefix(want[last], got[last])
}

// SettledMatch is the looser check applied after a failed attempt: the read-back holds the
// full message or its first prefix characters.
func SettledMatch(actual, expected string, prefix int) bool {
	a, e := Normalize(actual), Normalize(expected)
	if e == "" {
		return false
	}
	return strings.Contains(a, e) || strings.Contains(a, truncate(e, prefix))
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = Normalize(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
