package pagetest

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// Mutator edits the fixture from inside a hook or Mutate call. Selectors search every
// document and shadow root.
type Mutator struct {
	// Target is the element a click hook matched, nil elsewhere.
	Target *html.Node
	tree   *dom.HTMLTree
}

// Find returns the markup nodes matching selector.
func (m *Mutator) Find(selector string) []*html.Node {
	var out []*html.Node
	for _, n := range findAll(m.tree.Snapshot(), parser.MustParseSelector(selector)) {
		if h, ok := m.tree.HTMLNode(n.ID); ok {
			out = append(out, h)
		}
	}
	return out
}

// Remove detaches every match.
func (m *Mutator) Remove(selector string) int {
	found := m.Find(selector)
	for _, h := range found {
		if h.Parent != nil {
			h.Parent.RemoveChild(h)
		}
	}
	return len(found)
}

// Append parses markup and appends it to the first match.
func (m *Mutator) Append(selector, markup string) bool {
	found := m.Find(selector)
	if len(found) == 0 {
		return false
	}
	m.AppendTo(found[0], markup)
	return true
}

// AppendTo parses markup in the context of parent and appends the result.
func (m *Mutator) AppendTo(parent *html.Node, markup string) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}

// SetAttr sets an attribute on every match.
func (m *Mutator) SetAttr(selector, key, val string) {
	for _, h := range m.Find(selector) {
		setAttr(h, key, val)
	}
}

// SetText replaces the children of every match with text.
func (m *Mutator) SetText(selector, text string) {
	for _, h := range m.Find(selector) {
		clearChildren(h)
		h.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}
