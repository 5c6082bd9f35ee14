// internal/browser/resolver/targets.go
package resolver

import (
	"strings"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/parser"
)

// Fallback chains for the hiring UI, one tier per layout variant seen in the wild. Keep the
// newest layout first; older tiers stay until the variant is confirmed gone.

const (
	editorGroup = `.msg-form__contenteditable[contenteditable="true"], .msg-form [contenteditable="true"], ` +
		`div[contenteditable="true"][role="textbox"], div[contenteditable="true"][aria-label*="Write a message"]`

	activeBubble = `div.msg-overlay-conversation-bubble--is-active`

	cardSignals = `a[href*="/in/"], a[href*="/talent/"], [role="button"][aria-label*="View full profile"], ` +
		`[data-test-applicant-name], a[href*="/applicants/"][href*="/detail/"]`

	// What the list wait observes before card discovery retries.
	cardsAppear = `[data-testid="applicantListCollectionRef"] [role="button"][tabindex="0"], [role="listitem"], ` +
		`[role="option"], li[data-test-applicant-card], [data-test-applicant-name], li.hiring-applicants__list-item`

	panelReady = `button[data-view-name="hiring-applicant-contact"], button[data-view-name="hiring-applicant-contact-message"], ` +
		`button[aria-label*="Contact"], button[aria-label="Message"], [data-test-applicant-details], [role="region"], .hiring-applicant-header`

	headerControls = `.msg-overlay-bubble-header__controls`
)

var (
	hasApplicantLink  = hasDescendant(`a[href*="/applicants/"]`)
	hasLockupTitle    = hasDescendant(`.artdeco-entity-lockup__title`)
	hasFullProfile    = hasDescendant(`[role="button"][aria-label*="View full profile"]`)
	hasCardSignal     = hasDescendant(cardSignals)
	hasDetailSignal   = hasDescendant(`a[href*="/in/"], a[href*="/talent/"], [role="button"][aria-label*="View full profile"], [data-test-applicant-name]`)
	closeIconSelector = parser.MustParseSelector(`svg[data-test-icon]`)
	liIconSelector    = parser.MustParseSelector(`li-icon[type]`)
	headerAncestor    = parser.MustParseSelector(`.msg-overlay-bubble-header__controls, .msg-overlay-bubble-header`)
	formAncestor      = parser.MustParseSelector(`form.msg-form, form`)
	sendInForm        = parser.MustParseSelector(`button.msg-form__send-button, button[type='submit']`)
	buttonAncestor    = parser.MustParseSelector(`button`)
)

func hasDescendant(selector string) func(*dom.Node) bool {
	group := parser.MustParseSelector(selector)
	return func(n *dom.Node) bool { return dom.Query(n, group) != nil }
}

// IsShortlistControl reports controls that save or shortlist the applicant instead of
// opening them.
func IsShortlistControl(n *dom.Node) bool {
	if n == nil {
		return false
	}
	aria := AriaLabel(n)
	return strings.Contains(NormText(n), "shortlist") ||
		strings.Contains(aria, "shortlist") ||
		strings.Contains(aria, "save") ||
		strings.Contains(n.Lower("data-control-name"), "shortlist")
}

// -- Applicant list and detail panel --

// CardsAppear fires once anything card-like has rendered.
func CardsAppear() Target {
	return Target{Name: "applicant list", Chain: []Locator{Attr{Selector: cardsAppear}}, Prefer: FirstMatch}
}

// Cards lists applicant cards. Tiers: the classic list items, the lazy column's direct
// button rows, then a generic sweep for anything carrying a candidate signal.
func Cards() Target {
	return Target{
		Name:   "applicant cards",
		Prefer: FirstMatch,
		Chain: []Locator{
			Filter{Name: "linked-lockup", Inner: Attr{Selector: `li.hiring-applicants__list-item`},
				Keep: func(n *dom.Node) bool { return hasApplicantLink(n) && hasLockupTitle(n) }},
			Func{Name: "list-root-rows", Fn: listRootRows},
			Func{Name: "signal-sweep", Fn: signalSweep},
		},
	}
}

var listRoots = []string{
	`[data-testid="applicantListCollectionRef"]`,
	`[role="list"][data-component-type="LazyColumn"]`,
	`.hiring-applicants__list-container ul.artdeco-list`,
	`.hiring-applicants__list-container`,
}

func listRootRows(env Env, roots []*dom.Node) []*dom.Node {
	for _, sel := range listRoots {
		list := queryRoots(env, roots, sel)
		if len(list) == 0 {
			continue
		}
		var out []*dom.Node
		for _, row := range queryRoots(env, list[:1], `:scope > [role="button"][tabindex="0"]`) {
			if strings.Contains(NormText(row), "load more") || !hasFullProfile(row) {
				continue
			}
			out = append(out, row)
		}
		return out
	}
	return nil
}

// signalSweep keeps the outermost card-like node of each nested group so one applicant
// is not listed twice.
func signalSweep(env Env, roots []*dom.Node) []*dom.Node {
	found := queryRoots(env, roots,
		`[role="listitem"], [role="option"], [role="button"][tabindex="0"], li[data-test-applicant-card], li, article`)
	kept := make(map[*dom.Node]bool)
	var out []*dom.Node
	for _, n := range found {
		if !hasCardSignal(n) {
			continue
		}
		nested := false
		for p := n.ParentElement(); p != nil; p = p.ParentElement() {
			if kept[p] {
				nested = true
				break
			}
		}
		if nested {
			continue
		}
		kept[n] = true
		out = append(out, n)
	}
	return out
}

// DetailCard is the single applicant shown on a detail page when no list is rendered.
func DetailCard() Target {
	return Target{
		Name:   "detail card",
		Prefer: FirstMatch,
		Chain:  []Locator{TopDocument{Inner: Func{Name: "detail-root", Fn: detailCard}}},
	}
}

func detailCard(env Env, roots []*dom.Node) []*dom.Node {
	var root *dom.Node
	for _, sel := range []string{`[data-test-applicant-details]`, `[data-view-name="hiring-applicant-details"]`, `main section`, `main`} {
		if found := queryRoots(env, roots, sel); len(found) > 0 {
			root = found[0]
			break
		}
	}
	if root == nil || !hasDetailSignal(root) {
		return nil
	}
	signal := queryRoots(env, []*dom.Node{root},
		`a[href*="/in/"], a[href*="/talent/"], [role="button"][aria-label*="View full profile"], [data-test-applicant-name]`)[0]
	group, ok := compile(env, `[data-test-applicant-details], [data-view-name="hiring-applicant-details"], section, [role='region'], article`)
	if ok {
		if c := signal.Closest(group); c != nil {
			return []*dom.Node{c}
		}
	}
	return []*dom.Node{root}
}

// DetailOpeners lists what to click to open a card's details, best first. Callers click the
// closest button or link around the match.
func DetailOpeners(card int64) Target {
	chain := []Locator{In{Scope: card, Inner: Attr{Selector: `a[href*="/applicants/"][href*="/detail/"]`}}}
	for _, sel := range []string{
		`[data-test-applicant-name]`,
		`[role="button"][aria-label*="View full profile"]`,
		`a[href*="/in/"]`,
		`a[href*="/talent/"]`,
		`strong`, `h3`, `h4`,
	} {
		chain = append(chain, In{Scope: card, Inner: VisibleOnly(Filter{Name: "not-shortlist", Inner: Attr{Selector: sel}, Keep: notShortlist})})
	}
	return Target{Name: "detail opener", Chain: chain, Prefer: FirstMatch}
}

func notShortlist(n *dom.Node) bool {
	if IsShortlistControl(n) {
		return false
	}
	if b := n.Closest(buttonAncestor); b != nil && IsShortlistControl(b) {
		return false
	}
	return true
}

// PanelReady fires when the applicant's right panel has rendered its contact controls.
func PanelReady() Target {
	return Target{
		Name: "applicant panel",
		Chain: []Locator{
			Attr{Selector: panelReady},
			VisibleOnly(Text{Selector: "button", Mode: Exact, Values: []string{"message"}}),
		},
	}
}

// DetailRoots are the containers searched for the applied-for job title.
func DetailRoots() Target {
	return Target{
		Name:   "detail roots",
		Prefer: FirstMatch,
		Chain: []Locator{
			TopDocument{Inner: Attr{Selector: `[data-test-applicant-details], main, section, aside`}},
			TopDocument{Inner: Attr{Selector: `body`}},
		},
	}
}

// -- Opening the composer --

// DirectMessageButton is the panel's own Message control.
func DirectMessageButton() Target {
	header := []string{`.hiring-applicant-header`, `[data-test-applicant-details]`,
		`[data-view-name="hiring-applicant-details"]`, `main section`, `main`}
	var scoped []string
	for _, h := range header {
		scoped = append(scoped, h+` button`, h+` a[role="button"]`)
	}
	return Target{
		Name: "direct message button",
		Chain: []Locator{
			Attr{Selector: `button[data-view-name="hiring-applicant-contact-message"]`},
			Filter{Name: "message-label", Inner: Attr{Selector: strings.Join(scoped, ", ")}, Keep: isMessageLabel},
			VisibleOnly(Text{Selector: `button, a[role="button"]`, Mode: Exact, Values: []string{"message"}}),
		},
	}
}

func isMessageLabel(n *dom.Node) bool {
	text, aria := NormText(n), AriaLabel(n)
	return text == "message" || aria == "message" || strings.HasPrefix(aria, "message ") ||
		text == "send message" || aria == "send message"
}

// ContactButton opens the contact menu on layouts without a direct Message control.
func ContactButton() Target {
	return Target{
		Name: "contact button",
		Chain: []Locator{
			Attr{Selector: `button[data-view-name="hiring-applicant-contact"]`},
			Attr{Selector: `button[aria-label*="Contact"]`},
			VisibleOnly(Text{Selector: "button", Values: []string{"contact"}}),
			VisibleOnly(Text{Selector: "button", Mode: Exact, Values: []string{"message"}}),
		},
	}
}

// MessageMenuOption is the Message entry of the contact menu, never the share entry.
func MessageMenuOption() Target {
	var items []string
	for _, menu := range []string{`div[role="menu"]`, `[role="listbox"]`} {
		for _, item := range []string{`button`, `[role='menuitem']`, `a`, `div[role='button']`, `div.artdeco-dropdown__item`, `li`} {
			items = append(items, menu+" "+item)
		}
	}
	return Target{
		Name:   "message menu option",
		Prefer: VisibleRequired,
		Chain: []Locator{
			Text{Selector: strings.Join(items, ", "), Values: []string{"message"}, Exclude: []string{"share"}},
			Filter{Name: "compose-link", Inner: Attr{Selector: `a[href*="/messaging/compose/"]`},
				Keep: func(n *dom.Node) bool { return !strings.Contains(AriaLabel(n), "share job application") }},
			Filter{Name: "not-share-compose",
				Inner: Text{Selector: `button, a, [role="menuitem"], div[role="button"]`, Values: []string{"message"}, Exclude: []string{"share"}},
				Keep: func(n *dom.Node) bool {
					href := n.AttrOr("href")
					return !(strings.Contains(href, "/messaging/compose/") && strings.Contains(href, "subject="))
				}},
		},
	}
}

// -- Editors --

// ActiveBubbleEditor is the editor inside the focused conversation bubble.
func ActiveBubbleEditor() Target {
	return Target{
		Name: "active bubble editor",
		Chain: []Locator{
			Attr{Selector: activeBubble + ` .msg-form__contenteditable[contenteditable="true"]`},
			Attr{Selector: activeBubble + ` .msg-form [contenteditable="true"][role="textbox"]`},
			Attr{Selector: activeBubble + ` div[contenteditable="true"][role="textbox"]`},
			Attr{Selector: activeBubble + ` div[contenteditable="true"]`},
		},
	}
}

// ComposerEditors lists every message editor on the page, visible or not.
func ComposerEditors() Target {
	return Target{Name: "composer editors", Chain: []Locator{Attr{Selector: editorGroup}}}
}

// AnyEditor finds whatever editor is open right now. The last tier ranks bare
// contenteditables by how much they look like a message form.
func AnyEditor() Target {
	return Target{
		Name: "any editor",
		Chain: []Locator{
			Attr{Selector: `.msg-form__contenteditable[contenteditable="true"]`},
			Attr{Selector: `.msg-form [contenteditable="true"][role="textbox"]`},
			Attr{Selector: `div[contenteditable="true"][role="textbox"]`},
			Attr{Selector: `div[contenteditable="true"][aria-label*="Write a message"]`},
			Scored{
				Name:      "editor-like",
				Selector:  `div[contenteditable="true"]`,
				Threshold: 7,
				Signals: []Signal{
					{Name: "form-class", Weight: 5, Test: func(n *dom.Node) bool { return n.HasClass("msg-form__contenteditable") }},
					{Name: "textbox", Weight: 4, Test: func(n *dom.Node) bool {
						return n.Lower("role") == "textbox" || n.Lower("aria-multiline") == "true"
					}},
					{Name: "message-label", Weight: 2, Test: func(n *dom.Node) bool { return strings.Contains(AriaLabel(n), "message") }},
					{Name: "in-form", Weight: 2, Test: func(n *dom.Node) bool { return n.Closest(formAncestor) != nil }},
					{Name: "send-nearby", Weight: 4, Test: func(n *dom.Node) bool {
						f := n.Closest(formAncestor)
						return f != nil && dom.Query(f, sendInForm) != nil
					}},
					{Name: "visible", Weight: 2, Test: (*dom.Node).Visible},
				},
			},
		},
	}
}

// -- Composer structure --

// DialogFor is the panel an editor lives in.
func DialogFor(editor int64) Target {
	return Target{
		Name:   "composer dialog",
		Prefer: FirstMatch,
		Chain: []Locator{
			Near{Anchor: editor, Relation: Ancestor, Selector: `div[role="dialog"]`},
			Near{Anchor: editor, Relation: Ancestor, Selector: `div.msg-overlay-conversation-bubble`},
			Near{Anchor: editor, Relation: Ancestor, Selector: `section.msg-overlay-conversation-bubble`},
			Near{Anchor: editor, Relation: Ancestor, Selector: `form.msg-form`},
		},
	}
}

// OpenDialog finds a panel when no editor is left to anchor on.
func OpenDialog() Target {
	return Target{
		Name:   "open dialog",
		Prefer: FirstMatch,
		Chain: []Locator{TopDocument{Inner: Attr{Selector: activeBubble + `[role="dialog"], div.msg-overlay-conversation-bubble[role="dialog"], ` +
			`section.msg-overlay-conversation-bubble[role="dialog"], div[role="dialog"]`}}},
	}
}

// ContainerFor is the outermost overlay element of a panel, tried from the dialog first
// and then from the editor.
func ContainerFor(dialog, editor int64) Target {
	from := func(anchor int64) []Locator {
		return []Locator{
			Near{Anchor: anchor, Relation: Ancestor, Selector: `div.msg-overlay-conversation-bubble`},
			Near{Anchor: anchor, Relation: Ancestor, Selector: `section.msg-overlay-conversation-bubble`},
			Near{Anchor: anchor, Relation: AncestorWith, Selector: headerControls},
			Near{Anchor: anchor, Relation: Ancestor, Selector: `.msg-overlay-bubble-header`},
			Near{Anchor: anchor, Relation: Ancestor, Selector: `[data-view-name*="message-overlay"]`},
			Near{Anchor: anchor, Relation: Ancestor, Selector: `div[role="dialog"]`},
		}
	}
	chain := append(from(dialog), from(editor)...)
	chain = append(chain, Near{Anchor: editor, Relation: Ancestor, Selector: `form.msg-form`})
	return Target{Name: "composer container", Chain: chain, Prefer: FirstMatch}
}

// ThreadHistory matches rendered messages of an existing conversation.
func ThreadHistory(container int64) Target {
	return Target{
		Name:   "thread history",
		Prefer: VisibleRequired,
		Filter: func(n *dom.Node) bool { return n.Text() != "" },
		Chain: []Locator{Near{Anchor: container, Relation: Within, Selector: `.msg-s-message-list__event, .msg-s-message-group, ` +
			`.msg-s-event-listitem, .msg-overlay-conversation-bubble__message-list li, .msg-s-message-list-content, ` +
			`[data-view-name*="message-thread"] [role="listitem"]`}},
	}
}

// DialogTitle is the recipient label in a panel header. keep rejects generic titles.
func DialogTitle(dialog int64, keep func(text string) bool) Target {
	var chain []Locator
	for _, sel := range []string{
		`.msg-connections-typeahead__top-fixed-section span[dir="ltr"]`,
		`.msg-connections-typeahead__top-fixed-section span`,
		`[data-test-entity-lockup-title]`,
		`.artdeco-entity-lockup__title`,
		`.msg-overlay-bubble-header__title`,
		`h1, h2, h3, header span, [data-test-modal-title]`,
	} {
		chain = append(chain, Near{Anchor: dialog, Relation: Within, Selector: sel})
	}
	return Target{
		Name:   "dialog title",
		Prefer: FirstMatch,
		Chain:  chain,
		Filter: func(n *dom.Node) bool { t := n.Text(); return t != "" && (keep == nil || keep(t)) },
	}
}

// SendButton is the panel's send control, looked up in the editor's form before the panel.
func SendButton(editor, panel int64) Target {
	var chain []Locator
	for _, sel := range []string{`button[type="submit"]`, `button.msg-form__send-button`} {
		chain = append(chain, Near{Anchor: editor, Relation: Within, Container: `form.msg-form`, Selector: sel})
	}
	chain = append(chain, Filter{Name: "send-label", Inner: Near{Anchor: editor, Relation: Within, Container: `form.msg-form`, Selector: `button`},
		Keep: func(n *dom.Node) bool { return strings.Contains(NormText(n), "send") }})
	chain = append(chain,
		In{Scope: panel, Inner: Attr{Selector: `button[type="submit"]`}},
		In{Scope: panel, Inner: Attr{Selector: `button.msg-form__send-button`}},
		In{Scope: panel, Inner: Text{Selector: `button`, Values: []string{"send"}}},
	)
	return Target{Name: "send button", Chain: chain, Prefer: FirstMatch}
}

// -- Dismissal --

func iconType(n *dom.Node) string {
	if svg := dom.Query(n, closeIconSelector); svg != nil {
		return svg.Lower("data-test-icon")
	}
	if li := dom.Query(n, liIconSelector); li != nil {
		return li.Lower("type")
	}
	return ""
}

// HeaderClose is the close control among a panel's header buttons. Scope zero searches
// every document; otherwise the search stays inside that node.
func HeaderClose(scope int64) Target {
	buttons := headerControls + ` button`
	exact := Filter{Name: "close-icon", Inner: Attr{Selector: buttons}, Keep: func(n *dom.Node) bool {
		text := NormText(n)
		icon := ""
		if svg := dom.Query(n, closeIconSelector); svg != nil {
			icon = svg.Lower("data-test-icon")
		}
		return strings.Contains(icon, "close") || strings.Contains(text, "close your draft conversation") ||
			strings.Contains(text, "close your conversation")
	}}
	// Header controls are ordered minimize, close on every layout seen so far.
	second := Nth{Inner: Attr{Selector: buttons}, Index: 1}

	chain := []Locator{exact, second}
	if scope != 0 {
		chain = []Locator{In{Scope: scope, Inner: exact}, In{Scope: scope, Inner: second}}
	}
	return Target{Name: "header close", Chain: chain, Prefer: FirstMatch}
}

// RankedClose scores every button under scope by how close-like it is.
func RankedClose(scope int64) Target {
	ranked := Scored{
		Name:      "close-like",
		Selector:  "button",
		Threshold: 1,
		Signals: []Signal{
			{Name: "in-header", Weight: 3, Test: func(n *dom.Node) bool { return n.Closest(headerAncestor) != nil }},
			{Name: "close", Weight: 20, Test: func(n *dom.Node) bool {
				return strings.Contains(NormText(n), "close") || strings.Contains(AriaLabel(n), "close") ||
					strings.Contains(n.Lower("data-control-name"), "overlay.close") || strings.Contains(iconType(n), "close")
			}},
			{Name: "minimize", Weight: -4, Test: func(n *dom.Node) bool {
				return strings.Contains(NormText(n), "minimize") || strings.Contains(AriaLabel(n), "minimize") ||
					strings.Contains(n.Lower("data-control-name"), "overlay.minimize") || strings.Contains(iconType(n), "minimize")
			}},
			{Name: "draft", Weight: 5, Test: func(n *dom.Node) bool {
				return strings.Contains(NormText(n), "draft") || strings.Contains(AriaLabel(n), "draft")
			}},
		},
	}
	var loc Locator = TopDocument{Inner: ranked}
	if scope != 0 {
		loc = In{Scope: scope, Inner: ranked}
	}
	return Target{Name: "ranked close", Chain: []Locator{loc}, Prefer: FirstMatch}
}

// AriaClose is the last lookup for a close control: any button labelled or titled close
// that is not a minimize control.
func AriaClose() Target {
	return Target{
		Name:   "aria close",
		Prefer: FirstMatch,
		Chain: []Locator{Filter{Name: "close-label", Inner: Attr{Selector: "button"}, Keep: func(n *dom.Node) bool {
			aria := AriaLabel(n)
			return strings.Contains(aria, "close your conversation") || strings.Contains(aria, "close your draft") ||
				strings.Contains(aria, "close conversation") ||
				(strings.Contains(aria, "close") && !strings.Contains(aria, "minimize")) ||
				strings.Contains(n.Lower("title"), "close")
		}}},
	}
}

// DiscardPrompt is the confirmation shown when closing a panel with a draft.
func DiscardPrompt() Target {
	return Target{
		Name:   "discard prompt",
		Prefer: FirstMatch,
		Chain: []Locator{Filter{Name: "discard-label", Inner: Attr{Selector: "button"}, Keep: func(n *dom.Node) bool {
			text := NormText(n)
			return text == "discard" || strings.Contains(text, "discard draft") ||
				strings.Contains(text, "discard message") || strings.Contains(AriaLabel(n), "discard")
		}}},
	}
}

// Overlay is what gets force-hidden when every close attempt failed.
func Overlay() Target {
	var chain []Locator
	for _, sel := range []string{
		`.msg-overlay-conversation-bubble--is-active`,
		`div.msg-overlay-conversation-bubble[role='dialog']`,
		`section.msg-overlay-conversation-bubble`,
		`div[role='dialog'][class*='msg-overlay']`,
	} {
		chain = append(chain, Attr{Selector: sel})
	}
	return Target{
		Name:   "overlay",
		Prefer: FirstMatch,
		Chain:  chain,
		Filter: func(n *dom.Node) bool { return n.Bounds.Width > 0 },
	}
}

// ComposerCounts are the selectors behind the debug summary logged when no editor appears.
var ComposerCounts = map[string]string{
	"bubbles":      `div.msg-overlay-conversation-bubble[role="dialog"], ` + activeBubble + `[role="dialog"]`,
	"forms":        `form.msg-form`,
	"editors":      editorGroup,
	"send_buttons": `button.msg-form__send-button, button[type='submit']`,
}
