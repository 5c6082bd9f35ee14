// internal/browser/resolver/locator.go
package resolver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// Env is what a locator sees while it runs: the snapshot under evaluation and a logger.
type Env struct {
	Snapshot *dom.Snapshot
	Logger   *zap.Logger
}

// Locator finds candidate elements inside a set of search roots. Implementations return
// matches in document order unless their contract says otherwise (Scored sorts by score).
type Locator interface {
	Locate(env Env, roots []*dom.Node) []*dom.Node
	String() string
}

var selectorCache sync.Map // string -> compiled

type compiled struct {
	group parser.SelectorGroup
	err   error
}

// compile parses a selector once per process. Parse failures are logged on every use so a
// broken fallback tier stays visible in the logs.
func compile(env Env, selector string) (parser.SelectorGroup, bool) {
	v, ok := selectorCache.Load(selector)
	if !ok {
		g, err := parser.ParseSelector(selector)
		v, _ = selectorCache.LoadOrStore(selector, compiled{group: g, err: err})
	}
	c := v.(compiled)
	if c.err != nil {
		logger(env).Warn("Invalid selector; locator yields nothing.", zap.String("selector", selector), zap.Error(c.err))
		return nil, false
	}
	return c.group, true
}

func logger(env Env) *zap.Logger {
	if env.Logger == nil {
		return zap.NewNop()
	}
	return env.Logger
}

func queryRoots(env Env, roots []*dom.Node, selector string) []*dom.Node {
	group, ok := compile(env, selector)
	if !ok {
		return nil
	}
	var out []*dom.Node
	for _, r := range roots {
		out = append(out, dom.QueryAll(r, group)...)
	}
	return out
}

// -- Attr --

// Attr matches a CSS selector in every root.
type Attr struct {
	Selector string
}

func (a Attr) Locate(env Env, roots []*dom.Node) []*dom.Node {
	return queryRoots(env, roots, a.Selector)
}

func (a Attr) String() string { return "attr(" + a.Selector + ")" }

// -- Text --

// MatchMode selects how a Text locator compares labels.
type MatchMode int

const (
	Contains MatchMode = iota
	Exact
	Prefix
)

// Text matches elements whose normalized, lower-cased text satisfies the predicate. With
// Aria set the aria-label is tested as well and either may match. Exclude rejects an element
// when any excluded fragment appears in its text or aria-label.
type Text struct {
	Selector string
	Mode     MatchMode
	Values   []string
	Exclude  []string
	Aria     bool
}

func (t Text) Locate(env Env, roots []*dom.Node) []*dom.Node {
	var out []*dom.Node
	for _, n := range queryRoots(env, roots, t.Selector) {
		if t.accepts(n) {
			out = append(out, n)
		}
	}
	return out
}

func (t Text) accepts(n *dom.Node) bool {
	text := NormText(n)
	aria := AriaLabel(n)
	for _, ex := range t.Exclude {
		if strings.Contains(text, ex) || strings.Contains(aria, ex) {
			return false
		}
	}
	for _, v := range t.Values {
		if t.match(text, v) || (t.Aria && t.match(aria, v)) {
			return true
		}
	}
	return false
}

func (t Text) match(s, v string) bool {
	switch t.Mode {
	case Exact:
		return s == v
	case Prefix:
		return strings.HasPrefix(s, v)
	default:
		return strings.Contains(s, v)
	}
}

func (t Text) String() string {
	mode := [...]string{"contains", "exact", "prefix"}[t.Mode]
	return fmt.Sprintf("text(%s %s %q)", t.Selector, mode, t.Values)
}

// -- Near --

// Relation is how a Near locator relates its matches to the anchor.
type Relation int

const (
	// Ancestor is the anchor or its closest ancestor matching Selector.
	Ancestor Relation = iota
	// AncestorWith is the anchor or its closest ancestor that contains a Selector match,
	// stopping below body.
	AncestorWith
	// Within matches Selector below the anchor's closest Container, or below the anchor
	// itself when Container is empty.
	Within
	// Sibling matches Selector among the anchor's element siblings.
	Sibling
)

// Near resolves structurally from an anchor node of the current snapshot. A detached
// anchor yields nothing.
type Near struct {
	Anchor    int64
	Relation  Relation
	Container string
	Selector  string
}

func (l Near) Locate(env Env, _ []*dom.Node) []*dom.Node {
	anchor, ok := env.Snapshot.Node(l.Anchor)
	if !ok || l.Anchor == 0 {
		return nil
	}
	group, ok := compile(env, l.Selector)
	if !ok {
		return nil
	}
	switch l.Relation {
	case Ancestor:
		if n := anchor.Closest(group); n != nil {
			return []*dom.Node{n}
		}
	case AncestorWith:
		for cur := anchor; cur.IsElement() && cur.Tag != "body"; cur = cur.ParentElement() {
			if dom.Query(cur, group) != nil {
				return []*dom.Node{cur}
			}
		}
	case Within:
		scope := anchor
		if l.Container != "" {
			cg, ok := compile(env, l.Container)
			if !ok {
				return nil
			}
			if scope = anchor.Closest(cg); scope == nil {
				return nil
			}
		}
		return dom.DeepQueryAll(scope, group)
	case Sibling:
		parent := anchor.ParentElement()
		if parent == nil {
			return nil
		}
		var out []*dom.Node
		for _, c := range parent.ElementChildren() {
			if c != anchor && dom.Matches(c, group, nil) {
				out = append(out, c)
			}
		}
		return out
	}
	return nil
}

func (l Near) String() string {
	rel := [...]string{"ancestor", "ancestor-with", "within", "sibling"}[l.Relation]
	if l.Container != "" {
		return fmt.Sprintf("near(%d %s %s | %s)", l.Anchor, rel, l.Container, l.Selector)
	}
	return fmt.Sprintf("near(%d %s %s)", l.Anchor, rel, l.Selector)
}

// -- Scored --

// Signal is one weighted predicate of a Scored locator.
type Signal struct {
	Name   string
	Weight int
	Test   func(n *dom.Node) bool
}

// Scored ranks every Selector match by the summed weight of the signals it satisfies and
// keeps those scoring at least Threshold, best first. Equal scores keep document order.
type Scored struct {
	Name      string
	Selector  string
	Signals   []Signal
	Threshold int
}

func (s Scored) Locate(env Env, roots []*dom.Node) []*dom.Node {
	type entry struct {
		n     *dom.Node
		score int
	}
	var ranked []entry
	for _, n := range queryRoots(env, roots, s.Selector) {
		score := s.Score(n)
		if score >= s.Threshold {
			ranked = append(ranked, entry{n, score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]*dom.Node, len(ranked))
	for i, e := range ranked {
		out[i] = e.n
	}
	return out
}

// Score sums the weights of the signals n satisfies.
func (s Scored) Score(n *dom.Node) int {
	total := 0
	for _, sig := range s.Signals {
		if sig.Test(n) {
			total += sig.Weight
		}
	}
	return total
}

func (s Scored) String() string {
	return fmt.Sprintf("scored(%s %s >= %d)", s.Name, s.Selector, s.Threshold)
}

// -- Combinators --

// Filter keeps the matches of an inner locator that pass Keep.
type Filter struct {
	Name  string
	Inner Locator
	Keep  func(n *dom.Node) bool
}

func (f Filter) Locate(env Env, roots []*dom.Node) []*dom.Node {
	var out []*dom.Node
	for _, n := range f.Inner.Locate(env, roots) {
		if f.Keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func (f Filter) String() string { return f.Name + "(" + f.Inner.String() + ")" }

// VisibleOnly drops invisible matches.
func VisibleOnly(l Locator) Locator {
	return Filter{Name: "visible", Inner: l, Keep: (*dom.Node).Visible}
}

// Nth picks a single match by position.
type Nth struct {
	Inner Locator
	Index int
}

func (n Nth) Locate(env Env, roots []*dom.Node) []*dom.Node {
	all := n.Inner.Locate(env, roots)
	if n.Index < 0 || n.Index >= len(all) {
		return nil
	}
	return all[n.Index : n.Index+1]
}

func (n Nth) String() string { return fmt.Sprintf("nth(%d, %s)", n.Index, n.Inner) }

// In confines a locator to the subtree of one node, its shadow roots and frames included.
// A detached scope yields nothing.
type In struct {
	Scope int64
	Inner Locator
}

func (l In) Locate(env Env, _ []*dom.Node) []*dom.Node {
	scope, ok := env.Snapshot.Node(l.Scope)
	if !ok || l.Scope == 0 {
		return nil
	}
	return l.Inner.Locate(env, dom.SearchRoots(scope, env.Logger))
}

func (l In) String() string { return fmt.Sprintf("in(%d, %s)", l.Scope, l.Inner) }

// TopDocument confines a locator to the main document's light tree.
type TopDocument struct {
	Inner Locator
}

func (l TopDocument) Locate(env Env, roots []*dom.Node) []*dom.Node {
	if len(roots) == 0 {
		return nil
	}
	return l.Inner.Locate(env, roots[:1])
}

func (l TopDocument) String() string { return "top(" + l.Inner.String() + ")" }

// Func adapts a function to Locator for heuristics that do not reduce to the variants above.
type Func struct {
	Name string
	Fn   func(env Env, roots []*dom.Node) []*dom.Node
}

func (f Func) Locate(env Env, roots []*dom.Node) []*dom.Node { return f.Fn(env, roots) }

func (f Func) String() string { return "func(" + f.Name + ")" }

// -- Label helpers --

// NormText is the element's text, whitespace-collapsed and lower-cased.
func NormText(n *dom.Node) string {
	return strings.ToLower(strings.Join(strings.Fields(n.TextContent()), " "))
}

// AriaLabel is the trimmed, lower-cased aria-label.
func AriaLabel(n *dom.Node) string {
	return n.Lower("aria-label")
}
