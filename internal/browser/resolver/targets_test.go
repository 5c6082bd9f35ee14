package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page/pagetest"
)

func ids(nodes []*dom.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.AttrOr("id"))
	}
	return out
}

func TestCards(t *testing.T) {
	ctx := context.Background()

	t.Run("classic list items need a link and a title", func(t *testing.T) {
		p := pagetest.New(`<body><ul>
<li id="c1" class="hiring-applicants__list-item"><a href="/hiring/applicants/1"><span class="artdeco-entity-lockup__title">Jane Doe</span></a></li>
<li id="c2" class="hiring-applicants__list-item"><span class="artdeco-entity-lockup__title">No link</span></li>
<li id="c3" class="hiring-applicants__list-item"><a href="/hiring/applicants/3"><span class="artdeco-entity-lockup__title">John Roe</span></a></li>
</ul></body>`)
		r := New(p, p, zap.NewNop(), 0)
		assert.Equal(t, []string{"c1", "c3"}, ids(r.QueryAll(ctx, Cards())))
	})

	t.Run("lazy column rows", func(t *testing.T) {
		p := pagetest.New(`<body><div data-testid="applicantListCollectionRef">
<div id="r1" role="button" tabindex="0"><div role="button" aria-label="View full profile of Jane Doe">Jane Doe</div></div>
<div id="r2" role="button" tabindex="0">Load more</div>
<div id="r3" role="button" tabindex="0"><div role="button" aria-label="View full profile of Ann Lee">Ann Lee</div></div>
</div></body>`)
		r := New(p, p, zap.NewNop(), 0)
		assert.Equal(t, []string{"r1", "r3"}, ids(r.QueryAll(ctx, Cards())))
	})

	t.Run("signal sweep keeps the outermost card", func(t *testing.T) {
		p := pagetest.New(`<body><div role="list">
<div id="s1" role="listitem"><article id="inner"><a href="https://www.linkedin.com/in/jane">Jane</a></article></div>
<div id="s2" role="listitem"><span data-test-applicant-name>Ann</span></div>
<div id="s3" role="listitem"><span>No signal</span></div>
</div></body>`)
		r := New(p, p, zap.NewNop(), 0)
		assert.Equal(t, []string{"s1", "s2"}, ids(r.QueryAll(ctx, Cards())))
	})

	t.Run("detail page card", func(t *testing.T) {
		p := pagetest.New(`<body><main><section id="details" data-test-applicant-details>
<div id="lockup"><a href="https://www.linkedin.com/in/jane">Jane Doe</a></div>
</section></main></body>`)
		r := New(p, p, zap.NewNop(), 0)
		assert.Empty(t, r.QueryAll(ctx, Cards()))
		n, ok := r.Query(ctx, DetailCard())
		require.True(t, ok)
		assert.Equal(t, "details", n.AttrOr("id"))
	})
}

func TestDetailOpeners(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(`<body>
<div id="card1"><button aria-label="Save Jane"><strong>Jane Doe</strong></button><h3 id="h">Jane Doe</h3></div>
<div id="card2"><a id="detail" href="/hiring/jobs/1/applicants/2/detail/">Open</a></div>
</body>`)
	r := New(p, p, zap.NewNop(), 0)

	n, ok := r.Query(ctx, DetailOpeners(p.FindOne("#card1").ID))
	require.True(t, ok)
	assert.Equal(t, "h", n.AttrOr("id"), "the strong inside a shortlist button is skipped")

	n, ok = r.Query(ctx, DetailOpeners(p.FindOne("#card2").ID))
	require.True(t, ok)
	assert.Equal(t, "detail", n.AttrOr("id"))
}

func TestMessageTargets(t *testing.T) {
	ctx := context.Background()

	t.Run("direct message button in the header", func(t *testing.T) {
		p := pagetest.New(`<body><main><div class="hiring-applicant-header">
<button id="more" aria-label="More actions">More</button>
<button id="msg" aria-label="Message Jane Doe">Message</button>
</div></main></body>`)
		r := New(p, p, zap.NewNop(), 0)
		n, ok := r.Query(ctx, DirectMessageButton())
		require.True(t, ok)
		assert.Equal(t, "msg", n.AttrOr("id"))
	})

	t.Run("menu option excludes share", func(t *testing.T) {
		p := pagetest.New(`<body><div role="menu">
<div role="menuitem" id="share">Share message link</div>
<div role="menuitem" id="msg">Message</div>
</div></body>`)
		r := New(p, p, zap.NewNop(), 0)
		n, ok := r.Query(ctx, MessageMenuOption())
		require.True(t, ok)
		assert.Equal(t, "msg", n.AttrOr("id"))
	})

	t.Run("compose links with a subject are not message options", func(t *testing.T) {
		p := pagetest.New(`<body>
<a id="subject" href="/messaging/compose/?subject=Your+application" aria-label="Share job application">Message about job</a>
</body>`)
		r := New(p, p, zap.NewNop(), 0)
		_, ok := r.Query(ctx, MessageMenuOption())
		assert.False(t, ok)
	})
}

func TestEditorTargets(t *testing.T) {
	ctx := context.Background()

	t.Run("active bubble editor", func(t *testing.T) {
		p := pagetest.New(`<body>
<div class="msg-overlay-conversation-bubble"><div class="msg-form"><div id="old" class="msg-form__contenteditable" contenteditable="true"></div></div></div>
<div class="msg-overlay-conversation-bubble msg-overlay-conversation-bubble--is-active" role="dialog">
  <div class="msg-form"><div id="new" class="msg-form__contenteditable" contenteditable="true"></div></div>
</div></body>`)
		r := New(p, p, zap.NewNop(), 0)
		n, ok := r.Query(ctx, ActiveBubbleEditor())
		require.True(t, ok)
		assert.Equal(t, "new", n.AttrOr("id"))
		assert.Equal(t, []string{"old", "new"}, ids(r.QueryAll(ctx, ComposerEditors())))
	})

	t.Run("scored contenteditable fallback", func(t *testing.T) {
		p := pagetest.New(`<body>
<div id="notes" contenteditable="true"></div>
<form><div id="draft" contenteditable="true" aria-multiline="true" aria-label="Message body"></div><button type="submit">Go</button></form>
</body>`)
		r := New(p, p, zap.NewNop(), 0)
		n, ok := r.Query(ctx, AnyEditor())
		require.True(t, ok)
		assert.Equal(t, "draft", n.AttrOr("id"))
	})
}

const panelFixture = `<body>
<div id="bubble" class="msg-overlay-conversation-bubble msg-overlay-conversation-bubble--is-active" role="dialog">
  <header class="msg-overlay-bubble-header">
    <h2 class="msg-overlay-bubble-header__title">Jane Doe</h2>
    <div class="msg-overlay-bubble-header__controls">
      <button id="min">Minimize</button>
      <button id="close"><svg data-test-icon="close-small"></svg>Close your conversation with Jane</button>
    </div>
  </header>
  <ul class="msg-s-message-list-content"><li class="msg-s-event-listitem" id="old-msg">Hi there</li></ul>
  <form class="msg-form">
    <div id="editor" class="msg-form__contenteditable" contenteditable="true" role="textbox"></div>
    <button id="send" class="msg-form__send-button" type="submit">Send</button>
  </form>
</div>
<div role="dialog" id="prompt"><button id="discard">Discard</button></div>
</body>`

func TestPanelTargets(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(panelFixture)
	r := New(p, p, zap.NewNop(), 0)
	editor := p.FindOne("#editor").ID

	dialog, ok := r.Query(ctx, DialogFor(editor))
	require.True(t, ok)
	assert.Equal(t, "bubble", dialog.AttrOr("id"))

	container, ok := r.Query(ctx, ContainerFor(dialog.ID, editor))
	require.True(t, ok)
	assert.Equal(t, "bubble", container.AttrOr("id"))

	history, ok := r.Query(ctx, ThreadHistory(container.ID))
	require.True(t, ok)
	assert.Equal(t, "Hi there", history.Text())

	title, ok := r.Query(ctx, DialogTitle(dialog.ID, nil))
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", title.Text())
	_, ok = r.Query(ctx, DialogTitle(dialog.ID, func(string) bool { return false }))
	assert.False(t, ok)

	send, ok := r.Query(ctx, SendButton(editor, container.ID))
	require.True(t, ok)
	assert.Equal(t, "send", send.AttrOr("id"))

	closeBtn, ok := r.Query(ctx, HeaderClose(container.ID))
	require.True(t, ok)
	assert.Equal(t, "close", closeBtn.AttrOr("id"))

	ranked, ok := r.Query(ctx, RankedClose(container.ID))
	require.True(t, ok)
	assert.Equal(t, "close", ranked.AttrOr("id"))

	discard, ok := r.Query(ctx, DiscardPrompt())
	require.True(t, ok)
	assert.Equal(t, "discard", discard.AttrOr("id"))

	overlay, ok := r.Query(ctx, Overlay())
	require.True(t, ok)
	assert.Equal(t, "bubble", overlay.AttrOr("id"))

	s, _ := r.Capture(ctx)
	assert.Equal(t, 1, r.Count(s, ComposerCounts["forms"]))
	assert.Equal(t, 1, r.Count(s, ComposerCounts["send_buttons"]))
}

func TestHeaderCloseFallsBackToSecondButton(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(`<body><div class="msg-overlay-bubble-header__controls">
<button id="a">_</button><button id="b">x</button>
</div></body>`)
	r := New(p, p, zap.NewNop(), 0)
	n, ok := r.Query(ctx, HeaderClose(0))
	require.True(t, ok)
	assert.Equal(t, "b", n.AttrOr("id"))
}

func TestRankedClosePenalizesMinimize(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New(`<body><div id="root">
<button id="min" aria-label="Minimize and close later">-</button>
<button id="draft" aria-label="Close your draft conversation">x</button>
<button id="other">Attach</button>
</div></body>`)
	r := New(p, p, zap.NewNop(), 0)
	all := r.QueryAll(ctx, RankedClose(p.FindOne("#root").ID))
	assert.Equal(t, []string{"draft", "min"}, ids(all))

	n, ok := r.Query(ctx, AriaClose())
	require.True(t, ok)
	assert.Equal(t, "draft", n.AttrOr("id"))
}

func TestIsShortlistControl(t *testing.T) {
	p := pagetest.New(`<body>
<button id="a">Shortlist</button><button id="b" aria-label="Save candidate">*</button>
<button id="c" data-control-name="shortlist_toggle">*</button><button id="d">View</button>
</body>`)
	for id, want := range map[string]bool{"a": true, "b": true, "c": true, "d": false} {
		assert.Equal(t, want, IsShortlistControl(p.FindOne("#"+id)), id)
	}
	assert.False(t, IsShortlistControl(nil))
}
