package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/applicant-courier/internal/applicants"
	"github.com/xkilldash9x/applicant-courier/internal/browser/humanoid"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page/pagetest"
	"github.com/xkilldash9x/applicant-courier/internal/browser/resolver"
	"github.com/xkilldash9x/applicant-courier/internal/composer"
	"github.com/xkilldash9x/applicant-courier/internal/config"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

const bubbleMarkup = `<div id="b1" class="msg-overlay-conversation-bubble msg-overlay-conversation-bubble--is-active" role="dialog">
<header class="msg-overlay-bubble-header"><h2 class="msg-overlay-bubble-header__title">Jane Doe</h2>
<div class="msg-overlay-bubble-header__controls">
<button id="b1-close"><svg data-test-icon="close-small"></svg>Close your conversation</button>
</div></header>
<ul class="msg-s-message-list-content"></ul>
<form class="msg-form"><div id="b1-editor" class="msg-form__contenteditable" contenteditable="true" role="textbox"><p><br></p></div>
<button id="b1-send" class="msg-form__send-button" type="submit">Send</button></form></div>`

// TestRunEndToEnd drives the real composer against the in-memory page.
func TestRunEndToEnd(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pg := pagetest.New(listPage(1, ""))
	h := humanoid.NewTestHumanoid(pg, 11)
	res := resolver.New(pg, h, logger, 0)
	board := applicants.NewBoard(pg, res, h,
		config.ResolverConfig{ListWait: 50 * time.Millisecond, PanelWait: 200 * time.Millisecond},
		config.PipelineConfig{}, logger)
	lc := composer.New(pg, res, h, config.ComposerConfig{
		CloseTimeout:    300 * time.Millisecond,
		CloseAnyTimeout: 300 * time.Millisecond,
	}, 300*time.Millisecond, logger)
	st := store.NewMemory(logger)
	defer st.Close()

	var sends atomic.Int32
	var typed atomic.Value
	pg.OnClick(`[data-view-name="hiring-applicant-contact-message"]`, func(m *pagetest.Mutator) {
		m.Append("#overlay", bubbleMarkup)
	})
	pg.OnClick("#b1-send", func(m *pagetest.Mutator) {
		sends.Add(1)
		if eds := m.Find("#b1-editor"); len(eds) == 1 {
			typed.Store(textOf(eds[0]))
		}
	})
	pg.OnClick("#b1-close", func(m *pagetest.Mutator) { m.Remove("#b1") })

	p := New(Deps{Page: pg, Board: board, Composer: lc, Pacer: h, Store: st},
		config.PipelineConfig{}, config.PacingConfig{}, logger)

	ctx := context.Background()
	_, err := st.Patch(ctx, store.Patch{
		Running:  store.Ptr(true),
		Mode:     store.Ptr(store.ModeAuto),
		Template: store.Ptr("Hi {first_name}, re: {job_title}"),
	})
	require.NoError(t, err)

	require.NoError(t, p.Run(ctx))

	assert.Equal(t, int32(1), sends.Load())
	assert.Equal(t, "Hi Jane, re: Backend Engineer", typed.Load())
	assert.Nil(t, pg.FindOne("#b1"), "panel closed")

	state, err := st.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.SentCount)
	assert.Equal(t, StatusSent, state.Status)
	ok, err := st.Has(ctx, key(0))
	require.NoError(t, err)
	assert.True(t, ok)
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var out string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out += textOf(c)
	}
	return out
}
