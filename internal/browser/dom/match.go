// internal/browser/dom/match.go
package dom

import (
	"strings"

	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// Matches reports whether el matches any member of the group. scope anchors selectors
// written with a leading ":scope"; it may be nil when the group has none.
func Matches(el *Node, group parser.SelectorGroup, scope *Node) bool {
	if !el.IsElement() {
		return false
	}
	for _, cs := range group {
		if len(cs.Selectors) == 0 {
			continue
		}
		if recursiveMatch(el, cs, len(cs.Selectors)-1, scope) {
			return true
		}
	}
	return false
}

func recursiveMatch(n *Node, cs parser.ComplexSelector, index int, scope *Node) bool {
	if !n.IsElement() || index < 0 {
		return false
	}
	current := cs.Selectors[index]
	if !matchesSimple(n, current.SimpleSelector) {
		return false
	}
	if index == 0 {
		if !cs.Scoped {
			return true
		}
		// The leftmost compound relates to the scope element through its combinator.
		return relatesTo(n, current.Combinator, func(m *Node) bool { return m == scope })
	}
	return relatesTo(n, current.Combinator, func(m *Node) bool {
		return recursiveMatch(m, cs, index-1, scope)
	})
}

// relatesTo walks from n along the combinator and reports whether any reached node satisfies ok.
// Walks stop at the tree root, so matching never crosses a shadow or frame boundary.
func relatesTo(n *Node, c parser.Combinator, ok func(*Node) bool) bool {
	switch c {
	case parser.CombinatorDescendant:
		for p := n.ParentElement(); p != nil; p = p.ParentElement() {
			if ok(p) {
				return true
			}
		}
	case parser.CombinatorChild:
		if p := n.ParentElement(); p != nil {
			return ok(p)
		}
	case parser.CombinatorAdjacentSibling:
		if prev := n.PrevElementSibling(); prev != nil {
			return ok(prev)
		}
	case parser.CombinatorGeneralSibling:
		for prev := n.PrevElementSibling(); prev != nil; prev = prev.PrevElementSibling() {
			if ok(prev) {
				return true
			}
		}
	}
	return false
}

func matchesSimple(n *Node, sel parser.SimpleSelector) bool {
	if sel.TagName != "" && sel.TagName != "*" && n.Tag != sel.TagName {
		return false
	}
	if sel.ID != "" && n.AttrOr("id") != sel.ID {
		return false
	}
	for _, class := range sel.Classes {
		if !n.HasClass(class) {
			return false
		}
	}
	for _, attr := range sel.Attributes {
		if !matchesAttribute(n, attr) {
			return false
		}
	}
	for _, pc := range sel.Pseudos {
		if !matchesPseudo(n, pc) {
			return false
		}
	}
	return true
}

func matchesAttribute(n *Node, sel parser.AttributeSelector) bool {
	actual, found := n.Attr(sel.Name)
	if !found {
		return false
	}
	switch sel.Operator {
	case "":
		return true
	case "=":
		return actual == sel.Value
	case "~=":
		for _, word := range strings.Fields(actual) {
			if word == sel.Value {
				return true
			}
		}
		return false
	case "|=":
		return actual == sel.Value || strings.HasPrefix(actual, sel.Value+"-")
	case "^=":
		return sel.Value != "" && strings.HasPrefix(actual, sel.Value)
	case "$=":
		return sel.Value != "" && strings.HasSuffix(actual, sel.Value)
	case "*=":
		return sel.Value != "" && strings.Contains(actual, sel.Value)
	}
	return false
}

func matchesPseudo(n *Node, pc parser.PseudoClass) bool {
	if n.Parent == nil {
		return false
	}
	var siblings []*Node
	pos, typePos, typeCount := 0, 0, 0
	for _, c := range n.Parent.Children {
		if c.Type != ElementNode {
			continue
		}
		siblings = append(siblings, c)
		if c.Tag == n.Tag {
			typeCount++
		}
		if c == n {
			pos = len(siblings)
			typePos = typeCount
		}
	}
	switch pc.Name {
	case "first-child":
		return pos == 1
	case "last-child":
		return pos == len(siblings)
	case "only-child":
		return len(siblings) == 1
	case "nth-child":
		return pos == pc.Arg
	case "nth-of-type":
		return typePos == pc.Arg
	case "first-of-type":
		return typePos == 1
	case "last-of-type":
		return typePos == typeCount
	}
	return false
}

// QueryAll returns the light-tree descendants of root that match, in document order.
// Like querySelectorAll, root itself is never returned, but ancestors of root take part
// in matching.
func QueryAll(root *Node, group parser.SelectorGroup) []*Node {
	if root == nil {
		return nil
	}
	var out []*Node
	root.Walk(func(n *Node) bool {
		if n != root && Matches(n, group, root) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Query returns the first match under root, or nil.
func Query(root *Node, group parser.SelectorGroup) *Node {
	if root == nil {
		return nil
	}
	var found *Node
	root.Walk(func(n *Node) bool {
		if n != root && Matches(n, group, root) {
			found = n
			return false
		}
		return true
	})
	return found
}

// Closest returns n or its nearest ancestor element matching the group.
func (n *Node) Closest(group parser.SelectorGroup) *Node {
	for cur := n; cur != nil; cur = cur.ParentElement() {
		if Matches(cur, group, nil) {
			return cur
		}
		if cur.Type != ElementNode {
			break
		}
	}
	return nil
}

// DeepQueryAll is QueryAll over root and every shadow tree reachable from it.
func DeepQueryAll(root *Node, group parser.SelectorGroup) []*Node {
	out := QueryAll(root, group)
	root.Walk(func(n *Node) bool {
		for _, sr := range n.ShadowRoots {
			out = append(out, DeepQueryAll(sr, group)...)
		}
		return true
	})
	return out
}
