// internal/browser/page/page.go
package page

import (
	"context"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
)

// Tree is the read side of a page: immutable captures plus a change feed.
type Tree interface {
	// Snapshot captures the current document tree, frames and shadow roots included.
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
	// Mutations signals after the document changes. Bursts collapse into a single pending
	// signal. The channel is closed once ctx is done.
	Mutations(ctx context.Context) <-chan struct{}
}

// Page is the host document as the automation drives it. Node arguments are backend node
// IDs taken from a snapshot; an ID whose node has left the document yields an error.
type Page interface {
	Tree

	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error

	ScrollIntoView(ctx context.Context, id int64) error
	Focus(ctx context.Context, id int64) error
	// Click focuses the node and dispatches mousedown, mouseup and click at its center,
	// then calls the element's own click().
	Click(ctx context.Context, id int64) error
	// PressEscape sends Escape keydown and keyup to the node, or to the document element
	// when id is 0.
	PressEscape(ctx context.Context, id int64) error
	// Hide forces display:none !important on the node and tags it data-lhm-hidden="1".
	Hide(ctx context.Context, id int64) error

	// InsertText selects all editor content and replaces it through insertText.
	InsertText(ctx context.Context, id int64, text string) error
	// SetParagraphs replaces the editor markup.
	SetParagraphs(ctx context.Context, id int64, markup string) error
	// ClearEditor empties the editor down to a single blank paragraph.
	ClearEditor(ctx context.Context, id int64) error
	TypeChar(ctx context.Context, id int64, r rune) error
	InsertParagraph(ctx context.Context, id int64) error

	MouseMove(ctx context.Context, x, y float64) error
	ScrollBy(ctx context.Context, dy float64) error
	ViewportHeight(ctx context.Context) (float64, error)
}
