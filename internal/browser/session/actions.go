// internal/browser/session/actions.go
package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// onNode resolves a backend node id to a remote object and calls fn with it as `this`.
// A node that has left the document fails the resolve step.
func onNode(id int64, fn string, res interface{}, args ...interface{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := cdpdom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(id)).Do(ctx)
		if err != nil {
			return fmt.Errorf("node %d is not attached to the document: %w", id, err)
		}
		defer func() {
			_ = runtime.ReleaseObject(obj.ObjectID).Do(ctx)
		}()
		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID).WithAwaitPromise(true)
		}, args...).Do(ctx)
	})
}

func (s *Session) ScrollIntoView(ctx context.Context, id int64) error {
	return s.run(ctx, "scroll into view", s.actionTimeout(),
		cdpdom.ScrollIntoViewIfNeeded().WithBackendNodeID(cdp.BackendNodeID(id)))
}

func (s *Session) Focus(ctx context.Context, id int64) error {
	return s.run(ctx, "focus", s.actionTimeout(), cdpdom.Focus().WithBackendNodeID(cdp.BackendNodeID(id)))
}

func (s *Session) Click(ctx context.Context, id int64) error {
	return s.run(ctx, "click", s.actionTimeout(), onNode(id, jsClick, nil))
}

func (s *Session) PressEscape(ctx context.Context, id int64) error {
	if id == 0 {
		return s.run(ctx, "escape", s.actionTimeout(),
			chromedp.Evaluate(jsEscapeDocument, nil, withSilent))
	}
	return s.run(ctx, "escape", s.actionTimeout(), onNode(id, jsEscape, nil))
}

func (s *Session) Hide(ctx context.Context, id int64) error {
	return s.run(ctx, "hide", s.actionTimeout(), onNode(id, jsHide, nil))
}

func (s *Session) InsertText(ctx context.Context, id int64, text string) error {
	return s.run(ctx, "insert text", s.actionTimeout(), onNode(id, jsInsertText, nil, text))
}

func (s *Session) SetParagraphs(ctx context.Context, id int64, markup string) error {
	return s.run(ctx, "set paragraphs", s.actionTimeout(), onNode(id, jsSetParagraphs, nil, markup))
}

func (s *Session) ClearEditor(ctx context.Context, id int64) error {
	return s.run(ctx, "clear editor", s.actionTimeout(), onNode(id, jsClearEditor, nil))
}

// TypeChar focuses the editor and sends the rune as a real key press, so the page's
// framework sees keydown, input and keyup in order.
func (s *Session) TypeChar(ctx context.Context, id int64, r rune) error {
	ch := string(r)
	return s.run(ctx, "type", s.actionTimeout(),
		cdpdom.Focus().WithBackendNodeID(cdp.BackendNodeID(id)),
		input.DispatchKeyEvent(input.KeyDown).WithKey(ch).WithText(ch).WithUnmodifiedText(ch),
		input.DispatchKeyEvent(input.KeyUp).WithKey(ch),
	)
}

// InsertParagraph breaks the line without an Enter key press; Enter sends in most composers.
func (s *Session) InsertParagraph(ctx context.Context, id int64) error {
	return s.run(ctx, "insert paragraph", s.actionTimeout(), onNode(id, jsInsertParagraph, nil))
}

func (s *Session) MouseMove(ctx context.Context, x, y float64) error {
	err := s.run(ctx, "mouse move", s.actionTimeout(), input.DispatchMouseEvent(input.MouseMoved, x, y))
	if err == nil {
		s.mu.Lock()
		s.lastX, s.lastY = x, y
		s.mu.Unlock()
	}
	return err
}

// ScrollBy wheels the page at the last cursor position, scrolling whichever container
// sits under the pointer.
func (s *Session) ScrollBy(ctx context.Context, dy float64) error {
	s.mu.Lock()
	x, y := s.lastX, s.lastY
	s.mu.Unlock()
	s.logger.Debug("Scrolling.", zap.Float64("dy", dy))
	return s.run(ctx, "scroll", s.actionTimeout(),
		input.DispatchMouseEvent(input.MouseWheel, x, y).WithDeltaX(0).WithDeltaY(dy))
}

func (s *Session) ViewportHeight(ctx context.Context) (float64, error) {
	var h float64
	err := s.run(ctx, "viewport", s.actionTimeout(), chromedp.Evaluate(`window.innerHeight`, &h, withSilent))
	return h, err
}

func withSilent(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithSilent(true)
}
