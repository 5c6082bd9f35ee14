package pagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const composerFixture = `<html><body>
<button id="contact" aria-label="Contact Jane">Contact</button>
<div id="menu"></div>
<div id="editor" contenteditable="true" role="textbox"><p><br></p></div>
</body></html>`

func TestClickHooks(t *testing.T) {
	ctx := context.Background()
	p := New(composerFixture)
	p.OnClick("#contact", func(m *Mutator) {
		require.NotNil(t, m.Target)
		m.Append("#menu", `<div role="menu"><button id="msg">Message</button></div>`)
	})

	sub, cancel := context.WithCancel(ctx)
	defer cancel()
	changes := p.Mutations(sub)

	contact := p.FindOne("#contact")
	require.NotNil(t, contact)
	require.NoError(t, p.Click(ctx, contact.ID))

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("click hook did not notify subscribers")
	}
	msg := p.FindOne(`[role="menu"] #msg`)
	require.NotNil(t, msg)
	assert.Equal(t, "Message", msg.Text())
	assert.Equal(t, []int64{contact.ID}, p.Clicks())
	assert.Equal(t, contact.ID, p.Focused())
}

func TestClickDetachedNode(t *testing.T) {
	ctx := context.Background()
	p := New(composerFixture)
	contact := p.FindOne("#contact")
	p.Mutate(func(m *Mutator) { assert.Equal(t, 1, m.Remove("#contact")) })

	assert.Error(t, p.Click(ctx, contact.ID))
	assert.Empty(t, p.Clicks())
}

func TestEditorWrites(t *testing.T) {
	ctx := context.Background()
	p := New(composerFixture)
	id := p.FindOne("#editor").ID

	t.Run("insertText replaces content", func(t *testing.T) {
		require.NoError(t, p.InsertText(ctx, id, "Hello Jane"))
		assert.Equal(t, "Hello Jane", p.FindOne("#editor").InnerText())
	})

	t.Run("paragraph markup", func(t *testing.T) {
		require.NoError(t, p.SetParagraphs(ctx, id, "<p>Line1</p><p><br></p><p>Line2</p>"))
		// Empty paragraphs collapse in the rendered text.
		assert.Equal(t, "Line1\nLine2", p.FindOne("#editor").InnerText())
	})

	t.Run("typing", func(t *testing.T) {
		require.NoError(t, p.ClearEditor(ctx, id))
		for _, r := range "Hi" {
			require.NoError(t, p.TypeChar(ctx, id, r))
		}
		require.NoError(t, p.InsertParagraph(ctx, id))
		require.NoError(t, p.TypeChar(ctx, id, 'x'))
		assert.Equal(t, "Hi\nx", p.FindOne("#editor").InnerText())
	})

	t.Run("rejected writes are dropped silently", func(t *testing.T) {
		require.NoError(t, p.ClearEditor(ctx, id))
		p.RejectWrites(WriteInsertText, WriteParagraphs)
		require.NoError(t, p.InsertText(ctx, id, "dropped"))
		require.NoError(t, p.SetParagraphs(ctx, id, "<p>dropped</p>"))
		assert.Empty(t, p.FindOne("#editor").InnerText())

		require.NoError(t, p.TypeChar(ctx, id, 'k'))
		assert.Equal(t, "k", p.FindOne("#editor").InnerText())
	})
}

func TestHideAndEscape(t *testing.T) {
	ctx := context.Background()
	p := New(composerFixture)
	escapes := 0
	p.OnEscape(func(m *Mutator) { escapes++ })

	require.NoError(t, p.PressEscape(ctx, 0))
	assert.Equal(t, 1, escapes)
	assert.Equal(t, []int64{0}, p.Escapes())

	editor := p.FindOne("#editor")
	require.True(t, editor.Visible())
	require.NoError(t, p.Hide(ctx, editor.ID))
	editor = p.FindOne("#editor")
	assert.False(t, editor.Visible())
	assert.Equal(t, "1", editor.AttrOr("data-lhm-hidden"))
	assert.Equal(t, []int64{editor.ID}, p.Hidden())
}

func TestSleep(t *testing.T) {
	p := New(composerFixture)
	var seen []time.Duration
	p.OnSleep(func(d time.Duration) { seen = append(seen, d) })

	require.NoError(t, p.Sleep(context.Background(), 350*time.Millisecond))
	assert.Equal(t, []time.Duration{350 * time.Millisecond}, p.Sleeps())
	assert.Equal(t, seen, p.Sleeps())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Sleep(ctx, time.Second), context.Canceled)
	assert.Len(t, p.Sleeps(), 1)
}

func TestMutationsCloseWithContext(t *testing.T) {
	p := New(composerFixture)
	ctx, cancel := context.WithCancel(context.Background())
	ch := p.Mutations(ctx)
	cancel()
	for range ch {
	}
	// A later mutation must not panic on the closed subscription.
	p.Mutate(func(m *Mutator) { m.SetText("#contact", "Contact again") })
}

func TestMutateAfter(t *testing.T) {
	p := New(composerFixture)
	done := make(chan struct{})
	p.MutateAfter(10*time.Millisecond, func(m *Mutator) {
		m.SetAttr("#editor", "aria-label", "Write a message")
		close(done)
	})
	<-done
	assert.Equal(t, "Write a message", p.FindOne("#editor").AttrOr("aria-label"))
}
