// internal/composer/dismiss.go
package composer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/browser/resolver"
)

const (
	escapeSettle = 100 * time.Millisecond
	closeSettle  = 350 * time.Millisecond
	hideTimeout  = 2 * time.Second
)

// closeResult is how a dismissal ended.
type closeResult int

const (
	closedClean closeResult = iota
	closedHidden
	stillOpen
)

// panelRefs are the nodes that make up an open panel. Any of them may be zero.
type panelRefs struct {
	editor, dialog, container int64
}

func (p panelRefs) ids() []int64 { return []int64{p.container, p.dialog, p.editor} }

// open reports whether any part of the panel is still attached and visible.
func (p panelRefs) open(snap *dom.Snapshot) bool {
	for _, id := range p.ids() {
		if id == 0 {
			continue
		}
		if n, ok := snap.Node(id); ok && n.Visible() {
			return true
		}
	}
	return false
}

// CloseAny closes whatever messaging panel is open right now. It reports true when no
// panel is left open; no panel at all counts as closed.
func (l *Lifecycle) CloseAny(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, stopped(ctx, err)
	}
	return l.closeAny(ctx, l.cfg.CloseAnyTimeout) != stillOpen, nil
}

func (l *Lifecycle) closeAny(ctx context.Context, timeout time.Duration) closeResult {
	snap, ok := l.res.Capture(ctx)
	if !ok {
		return stillOpen
	}
	var refs panelRefs
	if editor, ok := l.res.Resolve(snap, resolver.AnyEditor()); ok {
		refs.editor = editor.ID
		if d, ok := l.res.Resolve(snap, resolver.DialogFor(editor.ID)); ok {
			refs.dialog = d.ID
		}
	} else if d, ok := l.res.Resolve(snap, resolver.OpenDialog()); ok {
		refs.dialog = d.ID
	}
	if refs.editor == 0 && refs.dialog == 0 {
		return closedClean
	}
	l.logger.Debug("Closing open composer.", zap.Int64("editor", refs.editor), zap.Int64("dialog", refs.dialog))
	return l.dismiss(ctx, refs, timeout)
}

func (l *Lifecycle) dismissSession(ctx context.Context, sess *Session, timeout time.Duration) {
	refs := panelRefs{editor: sess.Editor, dialog: sess.Dialog, container: sess.Container}
	result := l.dismiss(ctx, refs, timeout)
	sess.BestEffortClose = result != closedClean
	if result == stillOpen {
		sess.logger.Warn("Composer did not confirm closed; continuing.")
	}
}

// dismiss runs the close loop until the panel is gone or timeout passes, then hides the
// overlay as a last resort.
func (l *Lifecycle) dismiss(ctx context.Context, refs panelRefs, timeout time.Duration) closeResult {
	loopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for loopCtx.Err() == nil {
		snap, ok := l.res.Capture(loopCtx)
		if !ok {
			if l.pacer.Sleep(loopCtx, closeSettle) != nil {
				break
			}
			continue
		}
		if c, ok := l.res.Resolve(snap, resolver.ContainerFor(refs.dialog, refs.editor)); ok {
			refs.container = c.ID
		}
		if !refs.open(snap) {
			return closedClean
		}

		_ = l.page.PressEscape(loopCtx, 0)
		if refs.container != 0 {
			_ = l.page.PressEscape(loopCtx, refs.container)
		}
		if l.pacer.Sleep(loopCtx, escapeSettle) != nil {
			break
		}

		if snap, ok = l.res.Capture(loopCtx); ok {
			if btn, found := l.closeControl(snap, refs.container); found {
				if err := l.page.Click(loopCtx, btn.ID); err != nil {
					l.logger.Debug("Close control click failed.", zap.Error(err))
				}
			}
			l.confirmDiscard(loopCtx)
		}

		if l.pacer.Sleep(loopCtx, closeSettle) != nil {
			break
		}
		if snap, ok := l.res.Capture(loopCtx); ok && !refs.open(snap) {
			return closedClean
		}
	}

	// The loop context is spent; the last resort gets its own short budget.
	hideCtx, cancelHide := context.WithTimeout(page.Detach(ctx), hideTimeout)
	defer cancelHide()
	snap, ok := l.res.Capture(hideCtx)
	if !ok {
		return stillOpen
	}
	if !refs.open(snap) {
		return closedClean
	}
	if overlay, ok := l.res.Resolve(snap, resolver.Overlay()); ok {
		l.logger.Warn("Close controls failed; hiding the overlay.", zap.Int64("overlay", overlay.ID))
		if err := l.page.Hide(hideCtx, overlay.ID); err != nil {
			l.logger.Debug("Hiding overlay failed.", zap.Error(err))
		}
	}
	if snap, ok = l.res.Capture(hideCtx); ok && !refs.open(snap) {
		return closedHidden
	}
	return stillOpen
}

// closeControl looks for the panel's close button: the container's header controls, header
// controls anywhere, the ranked scan of the container and then the page, and finally any
// button labelled close.
func (l *Lifecycle) closeControl(snap *dom.Snapshot, container int64) (*dom.Node, bool) {
	var targets []resolver.Target
	if container != 0 {
		targets = append(targets, resolver.HeaderClose(container))
	}
	targets = append(targets, resolver.HeaderClose(0))
	if container != 0 {
		targets = append(targets, resolver.RankedClose(container))
	}
	targets = append(targets, resolver.RankedClose(0), resolver.AriaClose())

	for _, t := range targets {
		if n, ok := l.res.Resolve(snap, t); ok {
			return n, true
		}
	}
	return nil, false
}

func (l *Lifecycle) confirmDiscard(ctx context.Context) {
	snap, ok := l.res.Capture(ctx)
	if !ok {
		return
	}
	if btn, ok := l.res.Resolve(snap, resolver.DiscardPrompt()); ok {
		l.logger.Debug("Discarding draft.")
		_ = l.page.Click(ctx, btn.ID)
	}
}
