// Package resolver finds elements on a page that re-renders underneath the automation.
// Lookups are expressed as targets: ordered fallback chains of locators, one tier per known
// layout variant, evaluated over immutable snapshots. A missing element is never an error.
package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/observability"
)

// Preference decides which of several matches a target returns.
type Preference int

const (
	// PreferVisible returns the first visible match, else the last match.
	PreferVisible Preference = iota
	// VisibleRequired returns the first visible match or nothing.
	VisibleRequired
	// FirstMatch returns the first match regardless of visibility.
	FirstMatch
)

// Target is a named lookup. The chain is tried in order and the first tier producing any
// match decides the result.
type Target struct {
	Name  string
	Chain []Locator
	// Within restricts the search to one node's subtree. Zero searches every document and
	// shadow root of the page.
	Within int64
	Prefer Preference
	// Filter, when set, drops matches from every tier before preference applies.
	Filter func(n *dom.Node) bool
}

// Sleeper provides cancellable pauses. The pacing executor satisfies it.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Resolver evaluates targets against a page.
type Resolver struct {
	tree     page.Tree
	sleeper  Sleeper
	logger   *zap.Logger
	debounce time.Duration
}

// New builds a resolver. debounce is the quiet period WaitFor observes after a mutation
// notification before it re-queries.
func New(tree page.Tree, sleeper Sleeper, logger *zap.Logger, debounce time.Duration) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tree: tree, sleeper: sleeper, logger: logger.Named("resolver"), debounce: debounce}
}

// Capture takes a snapshot. Transport failures are logged and reported as absence.
func (r *Resolver) Capture(ctx context.Context) (*dom.Snapshot, bool) {
	s, err := r.tree.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("Snapshot failed; treating as absent.", zap.Error(err))
		}
		return nil, false
	}
	return s, true
}

// Query captures the page and resolves t immediately.
func (r *Resolver) Query(ctx context.Context, t Target) (*dom.Node, bool) {
	s, ok := r.Capture(ctx)
	if !ok {
		return nil, false
	}
	return r.Resolve(s, t)
}

// QueryAll captures the page and returns every match of the first productive tier.
func (r *Resolver) QueryAll(ctx context.Context, t Target) []*dom.Node {
	s, ok := r.Capture(ctx)
	if !ok {
		return nil
	}
	return r.ResolveAll(s, t)
}

// Resolve evaluates t against an existing snapshot.
func (r *Resolver) Resolve(s *dom.Snapshot, t Target) (*dom.Node, bool) {
	env, roots, ok := r.scope(s, t)
	if !ok {
		return nil, false
	}
	for tier, loc := range t.Chain {
		matches := t.filter(loc.Locate(env, roots))
		n, found := pick(matches, t.Prefer)
		if !found {
			continue
		}
		if tier > 0 {
			r.logger.Debug("Resolved through fallback tier.",
				zap.String("target", t.Name), observability.Tier(tier), zap.Stringer("locator", loc),
				zap.String("xpath", dom.XPath(n)))
		}
		return n, true
	}
	return nil, false
}

// ResolveAll is QueryAll against an existing snapshot. VisibleRequired drops invisible
// matches; the other preferences keep them.
func (r *Resolver) ResolveAll(s *dom.Snapshot, t Target) []*dom.Node {
	env, roots, ok := r.scope(s, t)
	if !ok {
		return nil
	}
	for tier, loc := range t.Chain {
		matches := t.filter(loc.Locate(env, roots))
		if t.Prefer == VisibleRequired {
			matches = visibleOnly(matches)
		}
		if len(matches) == 0 {
			continue
		}
		if tier > 0 {
			r.logger.Debug("Resolved through fallback tier.",
				zap.String("target", t.Name), observability.Tier(tier), zap.Int("matches", len(matches)))
		}
		return matches
	}
	return nil
}

func (r *Resolver) scope(s *dom.Snapshot, t Target) (Env, []*dom.Node, bool) {
	env := Env{Snapshot: s, Logger: r.logger}
	if s == nil || s.Root == nil {
		return env, nil, false
	}
	top := s.Root
	if t.Within != 0 {
		n, ok := s.Node(t.Within)
		if !ok {
			return env, nil, false
		}
		top = n
	}
	return env, dom.SearchRoots(top, r.logger), true
}

func (t Target) filter(matches []*dom.Node) []*dom.Node {
	if t.Filter == nil {
		return matches
	}
	out := matches[:0:0]
	for _, n := range matches {
		if t.Filter(n) {
			out = append(out, n)
		}
	}
	return out
}

func pick(matches []*dom.Node, prefer Preference) (*dom.Node, bool) {
	if len(matches) == 0 {
		return nil, false
	}
	if prefer == FirstMatch {
		return matches[0], true
	}
	for _, n := range matches {
		if n.Visible() {
			return n, true
		}
	}
	if prefer == VisibleRequired {
		return nil, false
	}
	return matches[len(matches)-1], true
}

func visibleOnly(nodes []*dom.Node) []*dom.Node {
	var out []*dom.Node
	for _, n := range nodes {
		if n.Visible() {
			out = append(out, n)
		}
	}
	return out
}

// WaitFor resolves t, waiting up to timeout for the page to produce it.
func (r *Resolver) WaitFor(ctx context.Context, t Target, timeout time.Duration) (*dom.Node, bool) {
	return r.WaitUntil(ctx, timeout, func(s *dom.Snapshot) (*dom.Node, bool) { return r.Resolve(s, t) })
}

// WaitUntil evaluates probe immediately and then once per mutation notification until it
// succeeds, the timeout expires or ctx is done. The subscription is taken before the first
// evaluation so a change racing the initial check is not lost.
func (r *Resolver) WaitUntil(ctx context.Context, timeout time.Duration, probe func(*dom.Snapshot) (*dom.Node, bool)) (*dom.Node, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	changes := r.tree.Mutations(ctx)

	check := func() (*dom.Node, bool) {
		s, ok := r.Capture(ctx)
		if !ok {
			return nil, false
		}
		return probe(s)
	}
	if n, ok := check(); ok {
		return n, true
	}

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case _, open := <-changes:
			if !open {
				return nil, false
			}
		}
		if r.debounce > 0 {
			quiet := time.NewTimer(r.debounce)
			select {
			case <-ctx.Done():
				quiet.Stop()
				return nil, false
			case <-quiet.C:
			}
			// Anything that arrived during the quiet period is covered by this check.
			select {
			case <-changes:
			default:
			}
		}
		if n, ok := check(); ok {
			return n, true
		}
	}
}

// Retry calls fn up to attempts times with interval pauses between calls. It is the
// fallback for lookups that mutation notifications do not cover reliably, such as content
// inside embedded documents.
func (r *Resolver) Retry(ctx context.Context, attempts int, interval time.Duration, fn func(ctx context.Context) (*dom.Node, bool)) (*dom.Node, bool) {
	for i := 0; i < attempts; i++ {
		if n, ok := fn(ctx); ok {
			return n, true
		}
		if i == attempts-1 {
			break
		}
		if err := r.sleeper.Sleep(ctx, interval); err != nil {
			return nil, false
		}
	}
	return nil, false
}

// RetryTarget is Retry around Query.
func (r *Resolver) RetryTarget(ctx context.Context, t Target, attempts int, interval time.Duration) (*dom.Node, bool) {
	return r.Retry(ctx, attempts, interval, func(ctx context.Context) (*dom.Node, bool) {
		return r.Query(ctx, t)
	})
}

// Count reports how many elements match selector across every search root of s.
func (r *Resolver) Count(s *dom.Snapshot, selector string) int {
	if s == nil || s.Root == nil {
		return 0
	}
	env := Env{Snapshot: s, Logger: r.logger}
	return len(queryRoots(env, dom.SearchRoots(s.Root, r.logger), selector))
}
