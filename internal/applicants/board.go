// Package applicants reads the hiring UI: the applicant list, the detail panel and the
// bits of text the message template needs.
package applicants

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
	"github.com/xkilldash9x/applicant-courier/internal/browser/resolver"
	"github.com/xkilldash9x/applicant-courier/internal/config"
)

const (
	listURLPrefix = "https://www.linkedin.com/hiring/applicants/"
	jobsPath      = "/hiring/jobs/"
	applicantPath = "/applicants/"
	detailPath    = "/detail"
)

var (
	// ErrUnsafeOpen means the only way into the details was a shortlist or save control.
	ErrUnsafeOpen = errors.New("could not safely open applicant details without a shortlist action")
	// ErrCardGone means the card left the document between discovery and use.
	ErrCardGone = errors.New("applicant card is no longer attached")
	// ErrPanelTimeout means the applicant panel never rendered its contact controls.
	ErrPanelTimeout = errors.New("applicant panel did not load in time")
)

// IsApplicantsPage reports whether u is the applicant list or a job's applicants view.
func IsApplicantsPage(u string) bool {
	return strings.HasPrefix(u, listURLPrefix) || (strings.Contains(u, jobsPath) && strings.Contains(u, applicantPath))
}

// IsDetailPage reports a single applicant's detail page.
func IsDetailPage(u string) bool {
	return strings.Contains(u, jobsPath) && strings.Contains(u, applicantPath) && strings.Contains(u, detailPath)
}

// Pacer is the slice of the pacing layer the board needs.
type Pacer interface {
	resolver.Sleeper
	ActionDelay(ctx context.Context) error
}

// Board finds applicants and opens their details.
type Board struct {
	page   page.Page
	res    *resolver.Resolver
	pacer  Pacer
	logger *zap.Logger

	listWait      time.Duration
	panelWait     time.Duration
	listRetries   int
	retryInterval time.Duration
}

// NewBoard builds a board. Zero durations and counts fall back to 15s list wait, 12s panel
// wait and 3 list retries 1200ms apart.
func NewBoard(pg page.Page, res *resolver.Resolver, pacer Pacer, rcfg config.ResolverConfig, pcfg config.PipelineConfig, logger *zap.Logger) *Board {
	b := &Board{
		page:          pg,
		res:           res,
		pacer:         pacer,
		logger:        logger.Named("applicants"),
		listWait:      rcfg.ListWait,
		panelWait:     rcfg.PanelWait,
		listRetries:   pcfg.ListRetries,
		retryInterval: pcfg.ListRetryInterval,
	}
	if b.listWait <= 0 {
		b.listWait = 15 * time.Second
	}
	if b.panelWait <= 0 {
		b.panelWait = 12 * time.Second
	}
	if b.listRetries <= 0 {
		b.listRetries = 3
	}
	if b.retryInterval <= 0 {
		b.retryInterval = 1200 * time.Millisecond
	}
	return b
}

// Candidates lists the applicants in the current document, in list order. A detail page
// without a list yields its single applicant.
func (b *Board) Candidates(ctx context.Context) []Candidate {
	snap, ok := b.res.Capture(ctx)
	if !ok {
		return nil
	}
	return b.FromSnapshot(ctx, snap)
}

// FromSnapshot is Candidates over an existing capture.
func (b *Board) FromSnapshot(ctx context.Context, snap *dom.Snapshot) []Candidate {
	raw, _ := b.page.URL(ctx)
	base, _ := url.Parse(raw)

	cards := b.res.ResolveAll(snap, resolver.Cards())
	if len(cards) == 0 && IsDetailPage(raw) {
		if card, ok := b.res.Resolve(snap, resolver.DetailCard()); ok {
			cards = []*dom.Node{card}
		}
	}
	out := make([]Candidate, 0, len(cards))
	for i, card := range cards {
		out = append(out, FromCard(card, i, base))
	}
	return out
}

// WaitForCandidates looks for cards now, then waits for anything card-like to render, then
// retries discovery a few times while the list settles.
func (b *Board) WaitForCandidates(ctx context.Context) []Candidate {
	if found := b.Candidates(ctx); len(found) > 0 {
		return found
	}
	if _, ok := b.res.WaitFor(ctx, resolver.CardsAppear(), b.listWait); !ok {
		b.logger.Debug("Applicant list did not render within the wait.", zap.Duration("wait", b.listWait))
	}

	var found []Candidate
	b.res.Retry(ctx, b.listRetries, b.retryInterval, func(ctx context.Context) (*dom.Node, bool) {
		found = b.Candidates(ctx)
		if len(found) == 0 {
			return nil, false
		}
		return nil, true
	})
	return found
}

var (
	clickable     = parser.MustParseSelector(`button, a, [role='button']`)
	buttonLike    = parser.MustParseSelector(`button, [role='button']`)
	jobTitleNodes = parser.MustParseSelector(`h1, h2, h3, [aria-label], span, p, a`)
	jobPrefixes   = []string{"applied for", "position", "job", "role"}
)

// OpenDetails opens c's detail panel and waits a pacing delay. It clicks the applicant
// detail link, else the first visible name-like element that is not a shortlist control,
// else the card itself when it carries no shortlist control at all.
func (b *Board) OpenDetails(ctx context.Context, c Candidate) error {
	snap, ok := b.res.Capture(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("capture before opening %s: %w", c.Name, ErrCardGone)
	}
	card, ok := snap.Node(c.Card)
	if !ok {
		return fmt.Errorf("%s: %w", c.Name, ErrCardGone)
	}

	target := int64(0)
	if opener, ok := b.res.Resolve(snap, resolver.DetailOpeners(c.Card)); ok {
		target = opener.ID
		if cl := opener.Closest(clickable); cl != nil {
			target = cl.ID
		}
	} else if !hasShortlistControl(card) {
		b.logger.Debug("No opener found; clicking the card.", zap.String("candidate", c.Name))
		target = card.ID
	}
	if target == 0 {
		return ErrUnsafeOpen
	}

	if err := b.page.Click(ctx, target); err != nil {
		return fmt.Errorf("open details for %s: %w", c.Name, err)
	}
	return b.pacer.ActionDelay(ctx)
}

func hasShortlistControl(card *dom.Node) bool {
	for _, n := range dom.QueryAll(card, buttonLike) {
		if resolver.IsShortlistControl(n) {
			return true
		}
	}
	return false
}

// WaitForPanel waits for the applicant panel's contact controls.
func (b *Board) WaitForPanel(ctx context.Context) error {
	if _, ok := b.res.WaitFor(ctx, resolver.PanelReady(), b.panelWait); ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrPanelTimeout
}

// JobTitle finds the applied-for position in the details. Entries outside 2 to 140
// characters are ignored and the result is capped at 120 characters.
func (b *Board) JobTitle(snap *dom.Snapshot) string {
	var found []string
	for _, root := range b.res.ResolveAll(snap, resolver.DetailRoots()) {
		for _, n := range dom.QueryAll(root, jobTitleNodes) {
			t := text(n)
			if len(t) < 2 || len(t) > 140 {
				continue
			}
			lower := strings.ToLower(t)
			isJobLink := n.Tag == "a" && strings.Contains(n.AttrOr("href"), "/jobs/view/")
			if !isJobLink && !strings.Contains(lower, "applied for") && !strings.Contains(lower, "position") &&
				!strings.Contains(lower, "job title") && !strings.Contains(lower, "role") {
				continue
			}
			if cleaned := cleanJobTitle(t); cleaned != "" {
				found = append(found, cleaned)
			}
		}
	}
	best := ""
	for _, t := range found {
		if !strings.EqualFold(t, "applied for") {
			best = t
			break
		}
	}
	if best == "" && len(found) > 0 {
		best = found[0]
	}
	return truncateRunes(best, 120)
}

// cleanJobTitle strips one leading label such as "Applied for:" or "Role -".
func cleanJobTitle(s string) string {
	s = NormalizeSpace(s)
	for _, p := range jobPrefixes {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimLeft(s[len(p):], ": \t-")
		}
	}
	return s
}

// DialogName reads the recipient name from an open panel, or "" when nothing reads like a
// person.
func (b *Board) DialogName(snap *dom.Snapshot, dialog int64) string {
	if dialog == 0 {
		return ""
	}
	n, ok := b.res.Resolve(snap, resolver.DialogTitle(dialog, LooksLikePersonName))
	if !ok {
		return ""
	}
	return text(n)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
