package applicants

import (
	"net/url"
	"strings"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// Candidate is one applicant as seen in the current snapshot. Card is only meaningful for
// that snapshot; identity lives in Key.
type Candidate struct {
	Index int
	Name  string
	Key   string
	// Messaged is set when the card itself says a message went out.
	Messaged bool
	Card     int64
}

var (
	profileLink   = parser.MustParseSelector(`a[href*="/in/"]`)
	applicantLink = parser.MustParseSelector(`a[href*="/applicants/"][href*="/detail/"], a[href*="/hiring/jobs/"]`)
	lockupTitle   = parser.MustParseSelector(`.artdeco-entity-lockup__title.hiring-people-card__title, .artdeco-entity-lockup__title`)
	ariaLabelled  = parser.MustParseSelector(`[aria-label]`)
	strongSel     = parser.MustParseSelector(`strong`)
	spanSel       = parser.MustParseSelector(`span`)
	paragraphSel  = parser.MustParseSelector(`p`)
	lockupMeta    = parser.MustParseSelector(`.artdeco-entity-lockup__metadata`)
	secondPara    = parser.MustParseSelector(`p:nth-of-type(2)`)
	thirdPara     = parser.MustParseSelector(`p:nth-of-type(3)`)
	clampLine     = parser.MustParseSelector(`.lt-line-clamp__line`)
)

// FromCard reads a candidate off a card node. base resolves relative links.
func FromCard(card *dom.Node, index int, base *url.URL) Candidate {
	return Candidate{
		Index:    index,
		Name:     CardName(card),
		Key:      CandidateKey(card, base),
		Messaged: AlreadyMessaged(card),
		Card:     card.ID,
	}
}

// CandidateKey is the profile reference when one resolves, else a key built from the name,
// headline and location.
func CandidateKey(card *dom.Node, base *url.URL) string {
	if ref := ProfileRef(card, base); ref != "" {
		return ref
	}
	return "candidate:" + stableID(card)
}

// ProfileRef is the card's profile link, or its applicant detail link reduced to origin and
// path so query churn does not change the key.
func ProfileRef(card *dom.Node, base *url.URL) string {
	if a := dom.Query(card, profileLink); a != nil {
		if href := a.AttrOr("href"); href != "" {
			return absolute(href, base)
		}
	}
	a := dom.Query(card, applicantLink)
	if a == nil {
		return ""
	}
	href := a.AttrOr("href")
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return u.Path
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func absolute(href string, base *url.URL) string {
	if base == nil {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

// CardName reads the display name. Sources in order: the lockup title, a multi-word
// aria-label that is not a "view full profile" control, a strong, a multi-word span, the
// first paragraph.
func CardName(card *dom.Node) string {
	if n := dom.Query(card, lockupTitle); n != nil {
		if t := text(n); t != "" {
			return t
		}
	}
	for _, n := range dom.QueryAll(card, ariaLabelled) {
		label := strings.TrimSpace(n.AttrOr("aria-label"))
		if label == "" || strings.Contains(strings.ToLower(label), "view full profile") {
			continue
		}
		if len(strings.Split(label, " ")) >= 2 {
			return stripVerified(label)
		}
	}
	if n := dom.Query(card, strongSel); n != nil {
		if t := text(n); t != "" {
			return t
		}
	}
	for _, n := range dom.QueryAll(card, spanSel) {
		if t := text(n); len(strings.Fields(t)) >= 2 {
			return t
		}
	}
	if n := dom.Query(card, paragraphSel); n != nil {
		if t := text(n); t != "" {
			return t
		}
	}
	return FallbackName
}

func stableID(card *dom.Node) string {
	var headline, location string
	meta := dom.QueryAll(card, lockupMeta)
	if len(meta) > 0 {
		headline = text(meta[0])
	}
	if len(meta) > 1 {
		location = text(meta[1])
	}
	if headline == "" {
		if p := dom.Query(card, secondPara); p != nil {
			headline = text(p)
		}
	}
	if location == "" {
		if p := dom.Query(card, thirdPara); p != nil {
			location = text(p)
		}
	}
	return strings.ToLower(CardName(card) + "::" + headline + "::" + location)
}

// AlreadyMessaged reports the in-list "Message sent" indicator.
func AlreadyMessaged(card *dom.Node) bool {
	for _, line := range dom.QueryAll(card, clampLine) {
		if strings.HasPrefix(strings.ToLower(text(line)), "message sent") {
			return true
		}
	}
	return false
}

func text(n *dom.Node) string { return NormalizeSpace(n.TextContent()) }
