// internal/browser/dom/html.go
package dom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// HTMLTree renders parsed markup into snapshots without a browser. It backs fixtures and the
// in-memory page: the html.Node tree may be mutated between captures and every surviving node
// keeps its ID, the way backend node IDs survive re-renders in Chromium.
//
// Rendering is deliberately small. <template shadowrootmode> becomes a shadow root of its
// parent, <iframe srcdoc> becomes a reachable frame document, and an iframe carrying
// data-cross-origin is treated as unreachable. Styles come from <style> blocks scoped to
// their tree, style attributes and the hidden attribute. Every rendered element gets a
// synthetic layout box unless data-rect="x,y,w,h" pins one.
type HTMLTree struct {
	Doc *html.Node

	ids    map[*html.Node]int64
	nodes  map[int64]*html.Node
	frames map[*html.Node]*html.Node
	nextID int64
}

// ParseHTMLTree parses a document.
func ParseHTMLTree(markup string) (*HTMLTree, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}
	return &HTMLTree{
		Doc:    doc,
		ids:    make(map[*html.Node]int64),
		nodes:  make(map[int64]*html.Node),
		frames: make(map[*html.Node]*html.Node),
	}, nil
}

// ParseHTML is a one-shot capture of markup.
func ParseHTML(markup string) (*Snapshot, error) {
	t, err := ParseHTMLTree(markup)
	if err != nil {
		return nil, err
	}
	return t.Snapshot(), nil
}

// ID returns the stable ID of h, allocating one on first sight.
func (t *HTMLTree) ID(h *html.Node) int64 {
	if id, ok := t.ids[h]; ok {
		return id
	}
	t.nextID++
	t.ids[h] = t.nextID
	t.nodes[t.nextID] = h
	return t.nextID
}

// HTMLNode returns the markup node behind an ID. For a shadow root this is its template.
func (t *HTMLTree) HTMLNode(id int64) (*html.Node, bool) {
	h, ok := t.nodes[id]
	return h, ok
}

// FrameDocument returns the parsed srcdoc of an iframe, parsing it once.
func (t *HTMLTree) FrameDocument(iframe *html.Node) *html.Node {
	if doc, ok := t.frames[iframe]; ok {
		return doc
	}
	src, ok := htmlAttr(iframe, "srcdoc")
	if !ok {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil
	}
	t.frames[iframe] = doc
	return doc
}

// Snapshot captures the current state of the tree.
func (t *HTMLTree) Snapshot() *Snapshot {
	root := t.convert(t.Doc)
	root.URL = "about:srcdoc"
	l := &layout{}
	l.document(root, Style{Visibility: "visible"}, true)
	return NewSnapshot(root)
}

func (t *HTMLTree) convert(h *html.Node) *Node {
	n := &Node{ID: t.ID(h)}
	switch h.Type {
	case html.DocumentNode:
		n.Type = DocumentNode
	case html.ElementNode:
		n.Type = ElementNode
		n.Tag = strings.ToLower(h.Data)
		n.Attrs = make(map[string]string, len(h.Attr))
		for _, a := range h.Attr {
			n.Attrs[strings.ToLower(a.Key)] = a.Val
		}
	case html.TextNode:
		n.Type = TextNode
		n.Value = h.Data
		return n
	default:
		return nil
	}

	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if n.Type == ElementNode && isShadowTemplate(c) {
			sr := &Node{ID: t.ID(c), Type: ShadowRootNode, Host: n}
			for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
				if child := t.convert(gc); child != nil {
					child.Parent = sr
					sr.Children = append(sr.Children, child)
				}
			}
			n.ShadowRoots = append(n.ShadowRoots, sr)
			continue
		}
		if child := t.convert(c); child != nil {
			child.Parent = n
			n.Children = append(n.Children, child)
		}
	}

	if n.Tag == "iframe" || n.Tag == "frame" {
		if _, ok := n.Attrs["data-cross-origin"]; ok {
			n.CrossOrigin = true
		} else if doc := t.FrameDocument(h); doc != nil {
			cd := t.convert(doc)
			cd.Frame = n
			cd.URL = n.AttrOr("src")
			if cd.URL == "" {
				cd.URL = "about:srcdoc"
			}
			n.ContentDocument = cd
		}
	}
	return n
}

func isShadowTemplate(h *html.Node) bool {
	if h.Type != html.ElementNode || h.Data != "template" {
		return false
	}
	_, ok := htmlAttr(h, "shadowrootmode")
	return ok
}

func htmlAttr(h *html.Node, key string) (string, bool) {
	for _, a := range h.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// -- Style and layout --

var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "title": true,
	"meta": true, "link": true, "noscript": true,
}

// rule is one declaration source competing in the cascade.
type rule struct {
	decl        parser.Declaration
	specificity [3]int
	order       int
}

type layout struct {
	boxes int
}

// document styles one tree root (a document or a shadow root) with the sheets that live in it.
func (l *layout) document(root *Node, inherited Style, rendered bool) {
	sheets := collectSheets(root)
	for _, c := range root.Children {
		l.element(c, sheets, inherited, rendered)
	}
}

func collectSheets(root *Node) []parser.StyleSheet {
	var sheets []parser.StyleSheet
	root.Walk(func(n *Node) bool {
		if n.Tag == "style" {
			sheets = append(sheets, parser.NewParser(n.TextContent()).Parse())
		}
		return true
	})
	return sheets
}

func (l *layout) element(n *Node, sheets []parser.StyleSheet, inherited Style, rendered bool) {
	if n.Type != ElementNode {
		return
	}
	n.Style = cascade(n, sheets, inherited)
	rendered = rendered && n.Style.Display != "none"
	if rendered {
		n.Bounds = l.box(n)
	}
	for _, sr := range n.ShadowRoots {
		l.document(sr, n.Style, rendered)
	}
	for _, c := range n.Children {
		l.element(c, sheets, n.Style, rendered)
	}
	if n.ContentDocument != nil {
		l.document(n.ContentDocument, Style{Visibility: "visible"}, rendered)
	}
}

// box hands out stacked synthetic boxes so every rendered element has an area.
func (l *layout) box(n *Node) Rect {
	if spec, ok := n.Attr("data-rect"); ok {
		parts := strings.Split(spec, ",")
		if len(parts) == 4 {
			var v [4]float64
			for i, p := range parts {
				v[i], _ = strconv.ParseFloat(strings.TrimSpace(p), 64)
			}
			return Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
		}
	}
	l.boxes++
	return Rect{X: 8, Y: float64(l.boxes) * 24, Width: 320, Height: 20}
}

func cascade(n *Node, sheets []parser.StyleSheet, inherited Style) Style {
	var rules []rule
	order := 0
	if _, hidden := n.Attr("hidden"); hidden {
		rules = append(rules, rule{decl: parser.Declaration{Property: "display", Value: "none"}, order: order})
		order++
	}
	for _, sheet := range sheets {
		for _, rs := range sheet.Rules {
			best, matched := [3]int{}, false
			for _, cs := range rs.Selectors {
				if !Matches(n, parser.SelectorGroup{cs}, nil) {
					continue
				}
				a, b, c := cs.CalculateSpecificity()
				if s := [3]int{a, b, c}; !matched || less(best, s) {
					best = s
				}
				matched = true
			}
			if !matched {
				continue
			}
			for _, d := range rs.Declarations {
				rules = append(rules, rule{decl: d, specificity: best, order: order})
				order++
			}
		}
	}
	if inline, ok := n.Attr("style"); ok {
		for _, d := range parser.ParseInline(inline) {
			// Inline declarations outrank any selector.
			rules = append(rules, rule{decl: d, specificity: [3]int{1 << 20, 0, 0}, order: order})
			order++
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		ri, rj := rules[i], rules[j]
		if ri.decl.Important != rj.decl.Important {
			return !ri.decl.Important
		}
		if ri.specificity != rj.specificity {
			return less(ri.specificity, rj.specificity)
		}
		return ri.order < rj.order
	})

	style := Style{Display: "block", Visibility: inherited.Visibility}
	if nonRendered[n.Tag] {
		style.Display = "none"
	}
	for _, r := range rules {
		v := strings.ToLower(strings.TrimSpace(string(r.decl.Value)))
		switch r.decl.Property {
		case "display":
			style.Display = v
		case "visibility":
			style.Visibility = v
		case "opacity":
			style.Opacity = v
		}
	}
	if style.Visibility == "" || style.Visibility == "inherit" {
		style.Visibility = inherited.Visibility
	}
	return style
}

func less(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
