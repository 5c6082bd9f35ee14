// internal/composer/composer_test.go
package composer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/humanoid"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page/pagetest"
	"github.com/xkilldash9x/applicant-courier/internal/browser/resolver"
	"github.com/xkilldash9x/applicant-courier/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const applicantPage = `<body><main>
<div class="hiring-applicant-header"><h1>Jane A. Doe</h1>
<button id="message" data-view-name="hiring-applicant-contact-message">Message</button></div>
</main><div id="overlay"></div></body>`

const menuPage = `<body><main>
<div class="hiring-applicant-header"><h1>Jane A. Doe</h1>
<button id="contact" data-view-name="hiring-applicant-contact">Contact</button></div>
</main><div id="overlay"></div></body>`

// bubble renders a conversation panel. history is placed in the message list; send=false
// leaves the form without a send control.
func bubble(id, history string, send bool) string {
	sendButton := ""
	if send {
		sendButton = `<button id="` + id + `-send" class="msg-form__send-button" type="submit">Send</button>`
	}
	return `<div id="` + id + `" class="msg-overlay-conversation-bubble msg-overlay-conversation-bubble--is-active" role="dialog">
<header class="msg-overlay-bubble-header"><h2 class="msg-overlay-bubble-header__title">Jane A. Doe</h2>
<div class="msg-overlay-bubble-header__controls">
<button id="` + id + `-minimize">Minimize</button>
<button id="` + id + `-close"><svg data-test-icon="close-small"></svg>Close your conversation</button>
</div></header>
<ul class="msg-s-message-list-content">` + history + `</ul>
<form class="msg-form"><div id="` + id + `-editor" class="msg-form__contenteditable" contenteditable="true" role="textbox"><p><br></p></div>` +
		sendButton + `</form></div>`
}

type fixture struct {
	page *pagetest.Page
	res  *resolver.Resolver
	lc   *Lifecycle
}

func newFixture(t *testing.T, markup string, cfg config.ComposerConfig, logger *zap.Logger) *fixture {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	pg := pagetest.New(markup)
	h := humanoid.NewTestHumanoid(pg, 1)
	res := resolver.New(pg, h, logger, 0)
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 300 * time.Millisecond
	}
	if cfg.CloseAnyTimeout == 0 {
		cfg.CloseAnyTimeout = 300 * time.Millisecond
	}
	return &fixture{page: pg, res: res, lc: New(pg, res, h, cfg, 300*time.Millisecond, logger)}
}

// openOnClick makes the Message control render a fresh bubble whose close control removes it.
func (f *fixture) openOnClick(selector, id, history string, send bool) {
	f.page.OnClick(selector, func(m *pagetest.Mutator) {
		m.Append("#overlay", bubble(id, history, send))
	})
	f.page.OnClick("#"+id+"-close", func(m *pagetest.Mutator) {
		m.Remove("#" + id)
	})
}

func request(auto bool, msg string) Request {
	return Request{
		Candidate: "Jane A. Doe",
		Key:       "url:https://www.linkedin.com/in/jane",
		Auto:      auto,
		Render:    func(*dom.Snapshot, int64) string { return msg },
	}
}

func TestRunDispatch(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)

	var beforeSend string
	var dialogTitle string
	req := request(true, "Hi Jane, thanks for applying.")
	req.Render = func(snap *dom.Snapshot, dialog int64) string {
		if n, ok := f.res.Resolve(snap, resolver.DialogTitle(dialog, nil)); ok {
			dialogTitle = n.Text()
		}
		return "Hi Jane, thanks for applying."
	}
	req.BeforeDispatch = func(ctx context.Context) error {
		beforeSend = f.page.FindOne("#b1-editor").InnerText()
		return nil
	}

	sess, err := f.lc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDispatched, sess.Outcome)
	assert.Equal(t, Closed, sess.State)
	assert.False(t, sess.BestEffortClose)
	assert.Equal(t, []State{Idle, Opening, AwaitingEditor, Writing, AwaitingDispatchReadiness, Dispatched, Closing, Closed}, sess.Path())
	assert.Equal(t, "Jane A. Doe", dialogTitle)
	assert.Equal(t, "Hi Jane, thanks for applying.", beforeSend)
	assert.Contains(t, f.page.Clicks(), sess.Dispatch, "send control was triggered")
	assert.Nil(t, f.page.FindOne("#b1"), "panel closed")
}

func TestRunManualDiscards(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)

	called := false
	req := request(false, "Hi Jane, thanks for applying.")
	req.BeforeDispatch = func(context.Context) error { called = true; return nil }

	sess, err := f.lc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDiscarded, sess.Outcome)
	assert.Equal(t, []State{Idle, Opening, AwaitingEditor, Writing, AwaitingDispatchReadiness, Discarded, Closing, Closed}, sess.Path())
	assert.NotZero(t, sess.Dispatch, "send control is located in manual mode")
	assert.NotContains(t, f.page.Clicks(), sess.Dispatch)
	assert.False(t, called)
	assert.Nil(t, f.page.FindOne("#b1"))
}

func TestRunSkipsExistingConversation(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1",
		`<li class="msg-s-event-listitem">Thanks for reaching out!</li>`, true)

	written := false
	req := request(true, "Hi Jane")
	req.Render = func(*dom.Snapshot, int64) string { written = true; return "Hi Jane" }

	sess, err := f.lc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkippedHistory, sess.Outcome)
	assert.Equal(t, []State{Idle, Opening, AwaitingEditor, Closing, Closed}, sess.Path())
	assert.False(t, written, "nothing is rendered for a thread with history")
	assert.Nil(t, f.page.FindOne("#b1"))
}

func TestRunIgnoresStalePanel(t *testing.T) {
	stale := `<div id="stale" class="msg-overlay-conversation-bubble" role="dialog">
<form class="msg-form"><div id="stale-editor" class="msg-form__contenteditable" contenteditable="true" role="textbox"><p><br></p></div>
<button class="msg-form__send-button" type="submit">Send</button></form></div>`

	t.Run("the new panel is used", func(t *testing.T) {
		f := newFixture(t, applicantPage+stale, config.ComposerConfig{}, nil)
		f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)

		sess, err := f.lc.Run(context.Background(), request(false, "Hi Jane"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDiscarded, sess.Outcome)
		assert.Empty(t, f.page.FindOne("#stale-editor").InnerText(), "stale panel never written")
	})

	t.Run("no new editor is a missing element", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		f := newFixture(t, applicantPage+stale, config.ComposerConfig{}, zap.New(core))

		sess, err := f.lc.Run(context.Background(), request(true, "Hi Jane"))
		require.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, Closed, sess.State)
		assert.Zero(t, sess.Editor)
		assert.Empty(t, f.page.FindOne("#stale-editor").InnerText())
		assert.Equal(t, 1, logs.FilterMessage("Message editor never appeared.").Len())
	})
}

func TestRunThroughContactMenu(t *testing.T) {
	f := newFixture(t, menuPage, config.ComposerConfig{}, nil)
	f.page.OnClick("#contact", func(m *pagetest.Mutator) {
		m.Append("main", `<div role="menu"><button id="share">Share job application</button><button id="msg-opt">Message</button></div>`)
	})
	f.openOnClick("#msg-opt", "b1", "", true)

	sess, err := f.lc.Run(context.Background(), request(true, "Hi Jane"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDispatched, sess.Outcome)

	clicked := make(map[string]bool)
	for _, n := range f.page.Find("button") {
		for _, id := range f.page.Clicks() {
			if n.ID == id {
				clicked[n.AttrOr("id")] = true
			}
		}
	}
	assert.True(t, clicked["contact"])
	assert.True(t, clicked["msg-opt"])
	assert.False(t, clicked["share"])
}

func TestRunMissingContactControls(t *testing.T) {
	f := newFixture(t, `<body><main><h1>Jane A. Doe</h1></main></body>`, config.ComposerConfig{}, nil)

	sess, err := f.lc.Run(context.Background(), request(true, "Hi Jane"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "contact button")
	assert.Equal(t, Closed, sess.State)
	assert.Empty(t, f.page.Clicks())
}

func TestRunWriteFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		rejected []string
		message  string
		want     string
	}{
		{"insert text", nil, "Hi Jane", "Hi Jane"},
		{"paragraphs after insert text is dropped", []string{pagetest.WriteInsertText}, "Hi Jane", "Hi Jane"},
		{"typing after both bulk writes are dropped", []string{pagetest.WriteInsertText, pagetest.WriteParagraphs}, "Hi Jane", "Hi Jane"},
		{"multi-line goes straight to paragraphs", []string{pagetest.WriteInsertText}, "Line1\nLine2", "Line1\nLine2"},
		{"multi-line typing", []string{pagetest.WriteParagraphs}, "Line1\nLine2", "Line1\nLine2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
			f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)
			f.page.RejectWrites(tc.rejected...)

			var got string
			req := request(true, tc.message)
			req.BeforeDispatch = func(context.Context) error {
				got = f.page.FindOne("#b1-editor").InnerText()
				return nil
			}
			sess, err := f.lc.Run(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, OutcomeDispatched, sess.Outcome)
			assert.True(t, TextMatches(got, tc.want, 40), "editor held %q", got)
		})
	}
}

func TestRunVerificationFailure(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{WriteAttempts: 2}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)
	f.page.RejectWrites(pagetest.WriteInsertText, pagetest.WriteParagraphs, pagetest.WriteTyping)

	sess, err := f.lc.Run(context.Background(), request(true, "Hi Jane"))
	require.ErrorIs(t, err, ErrVerification)
	assert.Equal(t, Closed, sess.State)
	assert.Equal(t, OutcomeNone, sess.Outcome)
	assert.NotContains(t, f.page.Clicks(), sess.Dispatch)
	assert.Nil(t, f.page.FindOne("#b1"), "panel closed after the failure")
}

func TestRunEmptyMessage(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)

	sess, err := f.lc.Run(context.Background(), request(true, "   "))
	require.ErrorIs(t, err, ErrVerification)
	assert.Equal(t, Closed, sess.State)
}

func TestRunMissingSendControl(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", false)

	sess, err := f.lc.Run(context.Background(), request(true, "Hi Jane"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "send button")
	assert.Equal(t, Closed, sess.State)
	assert.Nil(t, f.page.FindOne("#b1"))
}

func TestRunDispatchGateError(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	f.openOnClick(`button[data-view-name="hiring-applicant-contact-message"]`, "b1", "", true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := request(true, "Hi Jane")
	req.BeforeDispatch = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}

	sess, err := f.lc.Run(ctx, req)
	require.ErrorIs(t, err, ErrStopRequested)
	assert.Equal(t, Closed, sess.State)
	assert.NotContains(t, f.page.Clicks(), sess.Dispatch, "stopped before the send control")
	assert.Nil(t, f.page.FindOne("#b1"), "stopped runs still close the panel")
}

func TestRunStopDuringOpen(t *testing.T) {
	f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.page.OnClick(`button[data-view-name="hiring-applicant-contact-message"]`, func(m *pagetest.Mutator) {
		m.Append("#overlay", bubble("b1", "", true))
		cancel()
	})
	f.page.OnClick("#b1-close", func(m *pagetest.Mutator) { m.Remove("#b1") })

	sess, err := f.lc.Run(ctx, request(true, "Hi Jane"))
	require.ErrorIs(t, err, ErrStopRequested)
	assert.Equal(t, Closed, sess.State)
	assert.Equal(t, OutcomeNone, sess.Outcome)
	assert.Nil(t, f.page.FindOne("#b1"), "the defensive close found the panel without session refs")
}

func TestDismissFallbacks(t *testing.T) {
	t.Run("discard prompt is confirmed", func(t *testing.T) {
		f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
		f.page.OnClick(`button[data-view-name="hiring-applicant-contact-message"]`, func(m *pagetest.Mutator) {
			m.Append("#overlay", bubble("b1", "", true))
		})
		f.page.OnClick("#b1-close", func(m *pagetest.Mutator) {
			m.Append("body", `<div id="prompt" role="alertdialog"><button id="discard">Discard</button><button>Go back</button></div>`)
		})
		f.page.OnClick("#discard", func(m *pagetest.Mutator) {
			m.Remove("#prompt")
			m.Remove("#b1")
		})

		sess, err := f.lc.Run(context.Background(), request(false, "Hi Jane"))
		require.NoError(t, err)
		assert.False(t, sess.BestEffortClose)
		assert.Nil(t, f.page.FindOne("#b1"))
	})

	t.Run("escape closes the panel", func(t *testing.T) {
		f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
		f.page.OnClick(`button[data-view-name="hiring-applicant-contact-message"]`, func(m *pagetest.Mutator) {
			m.Append("#overlay", bubble("b1", "", true))
		})
		f.page.OnEscape(func(m *pagetest.Mutator) { m.Remove("#b1") })

		sess, err := f.lc.Run(context.Background(), request(false, "Hi Jane"))
		require.NoError(t, err)
		assert.False(t, sess.BestEffortClose)
		assert.Contains(t, f.page.Escapes(), int64(0), "document escape first")
	})

	t.Run("overlay is hidden when nothing closes it", func(t *testing.T) {
		f := newFixture(t, applicantPage, config.ComposerConfig{CloseTimeout: 100 * time.Millisecond}, nil)
		f.page.OnClick(`button[data-view-name="hiring-applicant-contact-message"]`, func(m *pagetest.Mutator) {
			m.Append("#overlay", bubble("b1", "", true))
		})

		sess, err := f.lc.Run(context.Background(), request(false, "Hi Jane"))
		require.NoError(t, err)
		assert.Equal(t, Closed, sess.State)
		assert.True(t, sess.BestEffortClose)
		require.Len(t, f.page.Hidden(), 1)
		assert.Equal(t, f.page.FindOne("#b1").ID, f.page.Hidden()[0])
		assert.Equal(t, "1", f.page.FindOne("#b1").AttrOr("data-lhm-hidden"))
	})
}

func TestCloseAny(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing open", func(t *testing.T) {
		f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
		closed, err := f.lc.CloseAny(ctx)
		require.NoError(t, err)
		assert.True(t, closed)
		assert.Empty(t, f.page.Clicks())
		assert.Empty(t, f.page.Escapes())
	})

	t.Run("leftover panel is closed", func(t *testing.T) {
		f := newFixture(t, `<body><div id="overlay">`+bubble("old", "", true)+`</div></body>`, config.ComposerConfig{}, nil)
		f.page.OnClick("#old-close", func(m *pagetest.Mutator) { m.Remove("#old") })

		closed, err := f.lc.CloseAny(ctx)
		require.NoError(t, err)
		assert.True(t, closed)
		assert.Nil(t, f.page.FindOne("#old"))
	})

	t.Run("stopped context", func(t *testing.T) {
		f := newFixture(t, applicantPage, config.ComposerConfig{}, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.lc.CloseAny(cctx)
		assert.ErrorIs(t, err, ErrStopRequested)
	})
}
