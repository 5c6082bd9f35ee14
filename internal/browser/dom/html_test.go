package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const styledFixture = `<!DOCTYPE html>
<html><head><style>
.collapsed { display: none }
#ghost { visibility: hidden }
.card .name { opacity: 0 }
.card .name.shown { opacity: 1 }
</style></head>
<body>
<div id="list">
  <div class="card"><span id="faded" class="name">A</span><span id="shown" class="name shown">B</span></div>
  <div class="collapsed"><button id="inner">x</button></div>
  <div id="ghost"><button id="ghost-btn">y</button><button id="ghost-vis" style="visibility: visible">z</button></div>
  <p hidden id="p-hidden">h</p>
  <p id="forced" class="collapsed" style="display: block">forced</p>
  <div id="host"><template shadowrootmode="open"><style>button { display: none }</style><button id="shadow-btn">s</button><a id="shadow-link">l</a></template><button id="light-btn">lb</button></div>
  <iframe id="frame" src="about:srcdoc" srcdoc="<p id='framed'>inside</p>"></iframe>
  <iframe id="xo" data-cross-origin src="https://other.example/"></iframe>
  <div id="pinned" data-rect="10,20,0,0">zero</div>
</div>
</body></html>`

func TestHTMLTreeStyles(t *testing.T) {
	s := mustParse(t, styledFixture)

	tests := []struct {
		id      string
		visible bool
	}{
		{"faded", false},
		{"shown", true},
		{"inner", false},
		{"ghost-btn", false},
		{"ghost-vis", true},
		{"p-hidden", false},
		{"forced", true},
		{"shadow-btn", false},
		{"shadow-link", true},
		{"light-btn", true},
		{"framed", true},
		{"pinned", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.visible, byID(t, s, tt.id).Visible())
		})
	}

	// Hidden by an ancestor: own display is untouched but there is no box.
	inner := byID(t, s, "inner")
	assert.Equal(t, "block", inner.Style.Display)
	assert.True(t, inner.Bounds.Empty())

	assert.Equal(t, Rect{X: 10, Y: 20}, byID(t, s, "pinned").Bounds)
}

func TestHTMLTreeShadowAndFrames(t *testing.T) {
	s := mustParse(t, styledFixture)

	btn := byID(t, s, "shadow-btn")
	root := btn.Root()
	require.Equal(t, ShadowRootNode, root.Type)
	assert.Nil(t, root.Parent)
	assert.Equal(t, "host", root.Host.AttrOr("id"))
	assert.Equal(t, s.Root, btn.OwnerDocument())

	// The template is consumed by the host and is not a light child.
	host := byID(t, s, "host")
	for _, c := range host.ElementChildren() {
		assert.NotEqual(t, "template", c.Tag)
	}

	framed := byID(t, s, "framed")
	doc := framed.OwnerDocument()
	require.Equal(t, DocumentNode, doc.Type)
	assert.NotSame(t, s.Root, doc)
	assert.Equal(t, "frame", doc.Frame.AttrOr("id"))

	xo := byID(t, s, "xo")
	assert.True(t, xo.CrossOrigin)
	assert.Nil(t, xo.ContentDocument)
}

func TestHTMLTreeStableIDs(t *testing.T) {
	tree, err := ParseHTMLTree(styledFixture)
	require.NoError(t, err)

	first := tree.Snapshot()
	card := byID(t, first, "faded").Parent
	light := byID(t, first, "light-btn")

	h, ok := tree.HTMLNode(card.ID)
	require.True(t, ok)
	h.Parent.RemoveChild(h)

	second := tree.Snapshot()
	assert.False(t, second.Connected(card.ID))
	assert.True(t, second.Connected(light.ID))
	assert.Equal(t, light.ID, byID(t, second, "light-btn").ID)
	assert.Less(t, second.Len(), first.Len())
}

func TestSnapshotOrder(t *testing.T) {
	s := mustParse(t, styledFixture)
	host := byID(t, s, "host")
	shadowBtn := byID(t, s, "shadow-btn")
	lightBtn := byID(t, s, "light-btn")
	framed := byID(t, s, "framed")

	assert.Less(t, host.Order, shadowBtn.Order)
	assert.Less(t, shadowBtn.Order, lightBtn.Order)
	assert.Less(t, lightBtn.Order, framed.Order)
}
