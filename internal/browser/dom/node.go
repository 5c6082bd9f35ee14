// internal/browser/dom/node.go
package dom

import (
	"strconv"
	"strings"
)

// NodeType distinguishes the node kinds kept in a snapshot.
type NodeType int

const (
	ElementNode NodeType = iota + 1
	TextNode
	DocumentNode
	ShadowRootNode
)

func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case DocumentNode:
		return "document"
	case ShadowRootNode:
		return "shadow-root"
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Rect is a layout box in CSS pixels relative to the top-level viewport.
type Rect struct {
	X, Y, Width, Height float64
}

// Empty reports whether the box has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Center returns the middle of the box.
func (r Rect) Center() (float64, float64) { return r.X + r.Width/2, r.Y + r.Height/2 }

// Style holds the computed properties the visibility filter needs.
type Style struct {
	Display    string
	Visibility string
	Opacity    string
}

// Node is one node of an immutable snapshot. Trees do not change after construction; a
// re-rendered page produces a new snapshot whose nodes carry the same IDs where the
// underlying host nodes survived.
type Node struct {
	// ID is the backend node ID. It is stable for the lifetime of the host node.
	ID    int64
	Type  NodeType
	Tag   string
	Attrs map[string]string
	// Value is the character data of a text node.
	Value string

	Parent   *Node
	Children []*Node

	// ShadowRoots are attached to their host element. A shadow root has no Parent.
	ShadowRoots []*Node
	Host        *Node

	// ContentDocument is set on frame elements whose document is reachable. Frames whose
	// document cannot be reached (out-of-process, cross-origin) set CrossOrigin instead.
	ContentDocument *Node
	CrossOrigin     bool
	// Frame is the owning frame element of a nested document.
	Frame *Node
	URL   string

	Bounds Rect
	Style  Style
	// Order is the position of the node in a depth-first walk of the whole snapshot.
	Order int
}

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool { return n != nil && n.Type == ElementNode }

// Attr returns the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil || n.Attrs == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// AttrOr returns the attribute value, or "" when absent.
func (n *Node) AttrOr(name string) string {
	v, _ := n.Attr(name)
	return v
}

// Lower returns the trimmed, lower-cased attribute value.
func (n *Node) Lower(name string) string {
	return strings.ToLower(strings.TrimSpace(n.AttrOr(name)))
}

// HasClass reports whether the class attribute contains the given token.
func (n *Node) HasClass(class string) bool {
	for _, c := range strings.Fields(n.AttrOr("class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Root walks up Parent links to the owning document or shadow root.
func (n *Node) Root() *Node {
	cur := n
	for cur != nil && cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// OwnerDocument returns the document containing n, crossing shadow boundaries.
func (n *Node) OwnerDocument() *Node {
	root := n.Root()
	for root != nil && root.Type == ShadowRootNode && root.Host != nil {
		root = root.Host.Root()
	}
	return root
}

// ParentElement returns the parent if it is an element.
func (n *Node) ParentElement() *Node {
	if n.Parent != nil && n.Parent.Type == ElementNode {
		return n.Parent
	}
	return nil
}

// Contains reports whether other is n or a light-tree descendant of n.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == n {
			return true
		}
	}
	return false
}

// ElementChildren returns the element children in order.
func (n *Node) ElementChildren() []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// PrevElementSibling returns the closest preceding element sibling.
func (n *Node) PrevElementSibling() *Node {
	if n.Parent == nil {
		return nil
	}
	var prev *Node
	for _, c := range n.Parent.Children {
		if c == n {
			return prev
		}
		if c.Type == ElementNode {
			prev = c
		}
	}
	return nil
}

// Walk visits n and its light-tree descendants depth first. Shadow roots and frame
// documents are separate trees and are not entered. Returning false stops the walk.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Visible applies the visibility filter: a non-empty box, display not none, visibility
// not hidden and opacity not zero.
func (n *Node) Visible() bool {
	if !n.IsElement() {
		return false
	}
	if n.Bounds.Empty() {
		return false
	}
	if n.Style.Display == "none" || n.Style.Visibility == "hidden" {
		return false
	}
	if op := strings.TrimSpace(n.Style.Opacity); op != "" {
		if f, err := strconv.ParseFloat(op, 64); err == nil && f == 0 {
			return false
		}
	}
	return true
}

// TextContent concatenates the text nodes of the light tree, like Node.textContent.
func (n *Node) TextContent() string {
	var b strings.Builder
	n.Walk(func(c *Node) bool {
		if c.Type == TextNode {
			b.WriteString(c.Value)
		}
		return true
	})
	return b.String()
}

// Text is the trimmed text content, the form every text heuristic compares against.
func (n *Node) Text() string {
	return strings.TrimSpace(n.TextContent())
}

// LowerText is Text folded to lower case.
func (n *Node) LowerText() string {
	return strings.ToLower(n.Text())
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "section": true, "article": true,
	"header": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "main": true, "aside": true, "blockquote": true, "pre": true, "tr": true,
}

// InnerText approximates the rendered text of an element: hidden subtrees are dropped and
// block elements and <br> become line breaks. Consecutive breaks collapse to one.
func (n *Node) InnerText() string {
	var b strings.Builder
	var render func(*Node)
	render = func(c *Node) {
		switch c.Type {
		case TextNode:
			b.WriteString(c.Value)
			return
		case ElementNode:
			if c.Style.Display == "none" {
				return
			}
			if c.Tag == "br" {
				b.WriteByte('\n')
				return
			}
		}
		block := c.Type == ElementNode && blockTags[c.Tag] && c != n
		if block {
			b.WriteByte('\n')
		}
		for _, ch := range c.Children {
			render(ch)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	render(n)

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
