// Package pagetest provides an in-memory page.Page backed by HTML fixtures. Actions edit
// the parsed markup, so a test can script how the application reacts to a click and then
// observe what the automation did.
package pagetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// Editor write methods, as named by RejectWrites.
const (
	WriteInsertText = "insertText"
	WriteParagraphs = "paragraphs"
	WriteTyping     = "type"
)

var _ page.Page = (*Page)(nil)

type hook struct {
	selector parser.SelectorGroup
	fn       func(m *Mutator)
}

// Page is a fake browser tab. It is safe for concurrent use.
type Page struct {
	mu      sync.Mutex
	tree    *dom.HTMLTree
	url     string
	subs    map[int]chan struct{}
	nextSub int

	clickHooks  []hook
	escapeHooks []func(m *Mutator)
	sleepHook   func(d time.Duration)
	rejected    map[string]bool
	snapshotErr error

	clicks  []int64
	escapes []int64
	focused int64
	scrolls []float64
	moves   int
	sleeps  []time.Duration
	hidden  []int64
}

// New parses markup into a page. It panics on malformed fixtures.
func New(markup string) *Page {
	tree, err := dom.ParseHTMLTree(markup)
	if err != nil {
		panic(err)
	}
	return &Page{
		tree:     tree,
		url:      "https://www.linkedin.com/hiring/applicants/?jobId=1",
		subs:     make(map[int]chan struct{}),
		rejected: make(map[string]bool),
	}
}

// -- Scripting --

// OnClick runs fn when a click lands on an element matching selector or inside one.
// Hooks are tried in registration order and the first match wins.
func (p *Page) OnClick(selector string, fn func(m *Mutator)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickHooks = append(p.clickHooks, hook{selector: parser.MustParseSelector(selector), fn: fn})
}

// OnEscape runs fn for every Escape press.
func (p *Page) OnEscape(fn func(m *Mutator)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapeHooks = append(p.escapeHooks, fn)
}

// OnSleep observes every requested pause, before it returns.
func (p *Page) OnSleep(fn func(d time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleepHook = fn
}

// RejectWrites makes the editor silently discard the named write methods, the way a
// reactive editor drops content it did not see typed.
func (p *Page) RejectWrites(methods ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected = make(map[string]bool)
	for _, m := range methods {
		p.rejected[m] = true
	}
}

// FailSnapshots makes Snapshot return err until cleared with nil.
func (p *Page) FailSnapshots(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotErr = err
}

// SetURL changes the reported location without navigating.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// Mutate edits the document and notifies subscribers.
func (p *Page) Mutate(fn func(m *Mutator)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.mutator(nil))
	p.notifyLocked()
}

// MutateAfter schedules Mutate on a timer, emulating content that renders asynchronously.
func (p *Page) MutateAfter(d time.Duration, fn func(m *Mutator)) *time.Timer {
	return time.AfterFunc(d, func() { p.Mutate(fn) })
}

// -- Observations --

// Clicks returns the IDs clicked so far.
func (p *Page) Clicks() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.clicks...)
}

// Escapes returns the targets of every Escape press (0 for the document).
func (p *Page) Escapes() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.escapes...)
}

// Sleeps returns every requested pause.
func (p *Page) Sleeps() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.sleeps...)
}

// Scrolls returns every ScrollBy delta.
func (p *Page) Scrolls() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.scrolls...)
}

// Moves counts cursor moves.
func (p *Page) Moves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves
}

// Focused is the last focused node.
func (p *Page) Focused() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focused
}

// Hidden lists nodes forced hidden.
func (p *Page) Hidden() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.hidden...)
}

// Find captures the page and returns every element matching selector across documents
// and shadow roots.
func (p *Page) Find(selector string) []*dom.Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return findAll(p.tree.Snapshot(), parser.MustParseSelector(selector))
}

// FindOne is Find returning the first match, or nil.
func (p *Page) FindOne(selector string) *dom.Node {
	if all := p.Find(selector); len(all) > 0 {
		return all[0]
	}
	return nil
}

func findAll(s *dom.Snapshot, group parser.SelectorGroup) []*dom.Node {
	var out []*dom.Node
	for _, root := range dom.SearchRoots(s.Root, nil) {
		out = append(out, dom.QueryAll(root, group)...)
	}
	return out
}

// -- page.Tree --

func (p *Page) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	return p.tree.Snapshot(), nil
}

func (p *Page) Mutations(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, id)
		close(ch)
		p.mu.Unlock()
	}()
	return ch
}

func (p *Page) notifyLocked() {
	for _, ch := range p.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// -- page.Page --

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Navigate(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.SetURL(u)
	return nil
}

func (p *Page) ScrollIntoView(ctx context.Context, id int64) error {
	_, err := p.element(ctx, id)
	return err
}

func (p *Page) Focus(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.elementLocked(ctx, id); err != nil {
		return err
	}
	p.focused = id
	return nil
}

func (p *Page) Click(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.elementLocked(ctx, id)
	if err != nil {
		return err
	}
	p.focused = id
	p.clicks = append(p.clicks, id)
	for _, h := range p.clickHooks {
		target := n.Closest(h.selector)
		if target == nil {
			continue
		}
		hn, _ := p.tree.HTMLNode(target.ID)
		h.fn(p.mutator(hn))
		p.notifyLocked()
		break
	}
	return nil
}

func (p *Page) PressEscape(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapes = append(p.escapes, id)
	for _, fn := range p.escapeHooks {
		fn(p.mutator(nil))
	}
	if len(p.escapeHooks) > 0 {
		p.notifyLocked()
	}
	return nil
}

func (p *Page) Hide(ctx context.Context, id int64) error {
	return p.edit(ctx, id, "", func(h *html.Node) {
		setAttr(h, "style", "display: none !important")
		setAttr(h, "data-lhm-hidden", "1")
		p.hidden = append(p.hidden, id)
	})
}

func (p *Page) InsertText(ctx context.Context, id int64, text string) error {
	return p.edit(ctx, id, WriteInsertText, func(h *html.Node) {
		clearChildren(h)
		para := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		para.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		h.AppendChild(para)
	})
}

func (p *Page) SetParagraphs(ctx context.Context, id int64, markup string) error {
	return p.edit(ctx, id, WriteParagraphs, func(h *html.Node) {
		nodes, err := html.ParseFragment(strings.NewReader(markup), h)
		if err != nil {
			return
		}
		clearChildren(h)
		for _, n := range nodes {
			h.AppendChild(n)
		}
	})
}

func (p *Page) ClearEditor(ctx context.Context, id int64) error {
	return p.edit(ctx, id, "", func(h *html.Node) {
		clearChildren(h)
		h.AppendChild(blankParagraph())
	})
}

func (p *Page) TypeChar(ctx context.Context, id int64, r rune) error {
	return p.edit(ctx, id, WriteTyping, func(h *html.Node) {
		para := h.LastChild
		if para == nil || para.Type != html.ElementNode || para.Data != "p" {
			para = &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
			h.AppendChild(para)
		}
		if br := para.LastChild; br != nil && br.Type == html.ElementNode && br.Data == "br" {
			para.RemoveChild(br)
		}
		if last := para.LastChild; last != nil && last.Type == html.TextNode {
			last.Data += string(r)
			return
		}
		para.AppendChild(&html.Node{Type: html.TextNode, Data: string(r)})
	})
}

func (p *Page) InsertParagraph(ctx context.Context, id int64) error {
	return p.edit(ctx, id, WriteTyping, func(h *html.Node) {
		h.AppendChild(blankParagraph())
	})
}

func (p *Page) MouseMove(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves++
	return nil
}

func (p *Page) ScrollBy(ctx context.Context, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls = append(p.scrolls, dy)
	return nil
}

func (p *Page) ViewportHeight(ctx context.Context) (float64, error) {
	return 900, nil
}

// Sleep records the pause and returns at once, failing only when ctx is done.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.sleeps = append(p.sleeps, d)
	fn := p.sleepHook
	p.mu.Unlock()
	if fn != nil {
		fn(d)
	}
	return ctx.Err()
}

// -- internals --

func (p *Page) element(ctx context.Context, id int64) (*dom.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elementLocked(ctx, id)
}

func (p *Page) elementLocked(ctx context.Context, id int64) (*dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, ok := p.tree.Snapshot().Node(id)
	if !ok || !n.IsElement() {
		return nil, fmt.Errorf("node %d is not attached to the document", id)
	}
	return n, nil
}

func (p *Page) edit(ctx context.Context, id int64, method string, fn func(h *html.Node)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.elementLocked(ctx, id); err != nil {
		return err
	}
	if method != "" && p.rejected[method] {
		return nil
	}
	h, _ := p.tree.HTMLNode(id)
	fn(h)
	p.notifyLocked()
	return nil
}

func (p *Page) mutator(target *html.Node) *Mutator {
	return &Mutator{Target: target, tree: p.tree}
}

func clearChildren(h *html.Node) {
	for c := h.FirstChild; c != nil; {
		next := c.NextSibling
		h.RemoveChild(c)
		c = next
	}
}

func blankParagraph() *html.Node {
	para := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	para.AppendChild(&html.Node{Type: html.ElementNode, Data: "br", DataAtom: atom.Br})
	return para
}

func setAttr(h *html.Node, key, val string) {
	for i := range h.Attr {
		if h.Attr[i].Key == key {
			h.Attr[i].Val = val
			return
		}
	}
	h.Attr = append(h.Attr, html.Attribute{Key: key, Val: val})
}
