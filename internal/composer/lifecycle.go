// Package composer drives the messaging panel for one candidate at a time: open it, wait for
// a fresh editor, write and verify the message, send or discard it, and close the panel again
// no matter how the earlier steps went.
package composer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/browser/resolver"
	"github.com/xkilldash9x/applicant-courier/internal/config"
)

const (
	contactAttempts   = 3
	contactInterval   = time.Second
	menuAttempts      = 5
	menuInterval      = 800 * time.Millisecond
	defaultEditorWait = 30 * time.Second
)

// Pacer is the slice of the pacing layer the lifecycle needs.
type Pacer interface {
	resolver.Sleeper
	ActionDelay(ctx context.Context) error
	Type(ctx context.Context, id int64, text string) error
}

// Request describes one candidate's pass.
type Request struct {
	Candidate string
	Key       string
	// Auto triggers the send control. Otherwise the verified draft is discarded.
	Auto bool
	// Render produces the message once the panel is open. dialog is the panel's node in
	// snap, or zero when no panel element could be resolved around the editor.
	Render func(snap *dom.Snapshot, dialog int64) string
	// BeforeDispatch, when set, runs right before the send control is triggered.
	BeforeDispatch func(ctx context.Context) error
}

// Lifecycle runs composer sessions against a page.
type Lifecycle struct {
	page       page.Page
	res        *resolver.Resolver
	pacer      Pacer
	cfg        config.ComposerConfig
	editorWait time.Duration
	logger     *zap.Logger
}

// New builds a lifecycle. editorWait bounds the wait for the editor after the opening click.
func New(pg page.Page, res *resolver.Resolver, pacer Pacer, cfg config.ComposerConfig, editorWait time.Duration, logger *zap.Logger) *Lifecycle {
	if editorWait <= 0 {
		editorWait = defaultEditorWait
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 4
	}
	if cfg.VerifyPrefix <= 0 {
		cfg.VerifyPrefix = 40
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.CloseAnyTimeout <= 0 {
		cfg.CloseAnyTimeout = 3500 * time.Millisecond
	}
	return &Lifecycle{
		page:       pg,
		res:        res,
		pacer:      pacer,
		cfg:        cfg,
		editorWait: editorWait,
		logger:     logger.Named("composer"),
	}
}

// Run takes one candidate from Idle to Closed. On success the returned session carries the
// outcome. On failure the panel has already been closed as far as possible and the error is
// classified with ErrNotFound, ErrVerification or ErrStopRequested.
func (l *Lifecycle) Run(ctx context.Context, req Request) (sess *Session, err error) {
	sess = newSession(req, l.logger)
	defer func() {
		if err != nil {
			err = stopped(ctx, err)
			l.abort(ctx, sess)
		}
	}()

	if err := ctx.Err(); err != nil {
		return sess, err
	}
	if err := sess.fire(EventOpen); err != nil {
		return sess, err
	}
	existing, err := l.open(ctx)
	if err != nil {
		return sess, err
	}
	if err := l.pacer.ActionDelay(ctx); err != nil {
		return sess, err
	}
	if err := sess.fire(EventClicked); err != nil {
		return sess, err
	}

	snap, err := l.awaitEditor(ctx, sess, existing)
	if err != nil {
		return sess, err
	}

	if l.hasHistory(snap, sess) {
		sess.logger.Info("Conversation already has messages; closing without writing.")
		if err := sess.fire(EventHistoryFound); err != nil {
			return sess, err
		}
		sess.Outcome = OutcomeSkippedHistory
		l.dismissSession(ctx, sess, l.cfg.CloseTimeout)
		return sess, sess.fire(EventClosed)
	}

	if err := sess.fire(EventEditorReady); err != nil {
		return sess, err
	}
	if req.Render != nil {
		sess.Message = req.Render(snap, sess.Dialog)
	}
	if strings.TrimSpace(sess.Message) == "" {
		return sess, fmt.Errorf("%w: rendered message is empty", ErrVerification)
	}
	if err := l.write(ctx, sess); err != nil {
		return sess, err
	}
	if err := sess.fire(EventVerified); err != nil {
		return sess, err
	}
	if err := l.pacer.ActionDelay(ctx); err != nil {
		return sess, err
	}

	panel := sess.Dialog
	if panel == 0 {
		panel = sess.Container
	}
	send, ok := l.res.Query(ctx, resolver.SendButton(sess.Editor, panel))
	if !ok {
		if ctx.Err() != nil {
			return sess, ctx.Err()
		}
		return sess, notFound("send button")
	}
	sess.Dispatch = send.ID

	if req.Auto {
		if req.BeforeDispatch != nil {
			if err := req.BeforeDispatch(ctx); err != nil {
				return sess, err
			}
		}
		if err := l.page.Click(ctx, send.ID); err != nil {
			return sess, fmt.Errorf("trigger send control: %w", err)
		}
		if err := sess.fire(EventSend); err != nil {
			return sess, err
		}
		sess.Outcome = OutcomeDispatched
		sess.logger.Info("Message dispatched.")
		// The message is out; a stop from here on only shortens the close.
		_ = l.pacer.ActionDelay(ctx)
	} else {
		if err := sess.fire(EventDiscard); err != nil {
			return sess, err
		}
		sess.Outcome = OutcomeDiscarded
		sess.logger.Info("Manual mode; draft verified and left unsent.")
	}

	if err := sess.fire(EventClose); err != nil {
		return sess, err
	}
	l.dismissSession(ctx, sess, l.cfg.CloseTimeout)
	return sess, sess.fire(EventClosed)
}

// open triggers the control that opens the panel and returns the editors that were already
// on the page before the click.
func (l *Lifecycle) open(ctx context.Context) (map[int64]bool, error) {
	snap, _ := l.res.Capture(ctx)
	if direct, ok := l.res.Resolve(snap, resolver.DirectMessageButton()); ok {
		existing := l.editorIDs(snap)
		l.logger.Debug("Opening composer through the direct message control.", zap.String("text", direct.Text()))
		if err := l.page.Click(ctx, direct.ID); err != nil {
			return nil, fmt.Errorf("click message control: %w", err)
		}
		return existing, nil
	}

	contact, ok := l.res.RetryTarget(ctx, resolver.ContactButton(), contactAttempts, contactInterval)
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, notFound("contact button")
	}
	if err := l.page.Click(ctx, contact.ID); err != nil {
		return nil, fmt.Errorf("click contact button: %w", err)
	}
	if err := l.pacer.ActionDelay(ctx); err != nil {
		return nil, err
	}

	option, ok := l.res.RetryTarget(ctx, resolver.MessageMenuOption(), menuAttempts, menuInterval)
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, notFound("message option in contact menu")
	}
	snap, _ = l.res.Capture(ctx)
	existing := l.editorIDs(snap)
	l.logger.Debug("Opening composer through the contact menu.", zap.String("text", option.Text()))
	if err := l.page.Click(ctx, option.ID); err != nil {
		return nil, fmt.Errorf("click message option: %w", err)
	}
	return existing, nil
}

func (l *Lifecycle) editorIDs(snap *dom.Snapshot) map[int64]bool {
	ids := make(map[int64]bool)
	for _, n := range l.res.ResolveAll(snap, resolver.ComposerEditors()) {
		ids[n.ID] = true
	}
	return ids
}

// pickEditor prefers the active bubble's editor, then any editor that was not on the page
// before the click. A lone editor counts as new only when there were none before.
func (l *Lifecycle) pickEditor(snap *dom.Snapshot, existing map[int64]bool) (*dom.Node, bool) {
	if n, ok := l.res.Resolve(snap, resolver.ActiveBubbleEditor()); ok && !existing[n.ID] {
		return n, true
	}
	all := l.res.ResolveAll(snap, resolver.ComposerEditors())
	for _, n := range all {
		if !existing[n.ID] {
			return n, true
		}
	}
	if len(all) > 0 && len(existing) == 0 {
		return all[len(all)-1], true
	}
	return nil, false
}

func (l *Lifecycle) awaitEditor(ctx context.Context, sess *Session, existing map[int64]bool) (*dom.Snapshot, error) {
	var found *dom.Snapshot
	editor, ok := l.res.WaitUntil(ctx, l.editorWait, func(s *dom.Snapshot) (*dom.Node, bool) {
		n, ok := l.pickEditor(s, existing)
		if ok {
			found = s
		}
		return n, ok
	})
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.logComposerCounts(ctx)
		return nil, notFound("message editor")
	}

	sess.Editor = editor.ID
	if d, ok := l.res.Resolve(found, resolver.DialogFor(editor.ID)); ok {
		sess.Dialog = d.ID
	}
	if c, ok := l.res.Resolve(found, resolver.ContainerFor(sess.Dialog, editor.ID)); ok {
		sess.Container = c.ID
	}
	sess.logger.Debug("Editor ready.", zap.Int64("editor", sess.Editor),
		zap.Int64("dialog", sess.Dialog), zap.Int64("container", sess.Container))
	return found, nil
}

func (l *Lifecycle) hasHistory(snap *dom.Snapshot, sess *Session) bool {
	scope := sess.Container
	if scope == 0 {
		scope = sess.Dialog
	}
	if scope == 0 {
		scope = sess.Editor
	}
	_, ok := l.res.Resolve(snap, resolver.ThreadHistory(scope))
	return ok
}

// logComposerCounts explains a missing editor in the log.
func (l *Lifecycle) logComposerCounts(ctx context.Context) {
	snap, ok := l.res.Capture(ctx)
	if !ok {
		return
	}
	names := make([]string, 0, len(resolver.ComposerCounts))
	for name := range resolver.ComposerCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	fields := make([]zap.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, zap.Int(name, l.res.Count(snap, resolver.ComposerCounts[name])))
	}
	l.logger.Warn("Message editor never appeared.", fields...)
}

// abort runs the defensive close and ends the session. A stopped run still gets a bounded
// close on a context detached from the cancellation.
func (l *Lifecycle) abort(ctx context.Context, sess *Session) {
	if sess.State.Terminal() {
		return
	}
	if CanClose(sess.State) {
		_ = sess.fire(EventClose)
		closeCtx := ctx
		if ctx.Err() != nil {
			closeCtx = page.Detach(ctx)
		}
		if sess.Editor == 0 && sess.Dialog == 0 && sess.Container == 0 {
			l.closeAny(closeCtx, l.cfg.CloseTimeout)
		} else {
			l.dismissSession(closeCtx, sess, l.cfg.CloseTimeout)
		}
	}
	_ = sess.fire(EventAbort)
}
