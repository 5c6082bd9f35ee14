// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/domsnapshot"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/humanoid"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/config"
)

const (
	defaultActionTimeout   = 10 * time.Second
	defaultSnapshotTimeout = 15 * time.Second
)

// Session is one browser tab driven over CDP. It is the production page.Page and also
// serves the pacing layer as its executor.
type Session struct {
	ctx    context.Context // the tab's chromedp context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	// runActionsFunc executes actions against the tab. Tests swap it for a recorder.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
	lastX   float64
	lastY   float64
}

var (
	_ page.Page         = (*Session)(nil)
	_ humanoid.Executor = (*Session)(nil)
)

// Launch starts (or attaches to) a browser and opens the tab the automation drives.
// Closing the session releases the tab and, for launched browsers, the process.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("session")

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		logger.Info("Attaching to running browser.", zap.String("remote_url", cfg.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts, err := allocatorOptions(cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Launching browser.", zap.Bool("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	s := newSession(tabCtx, func() {
		tabCancel()
		allocCancel()
	}, cfg, logger)

	// The first Run starts the browser. DOM mutation events are only reported for nodes the
	// client has requested, so the pierced document is fetched up front.
	if err := chromedp.Run(tabCtx, cdpdom.Enable(), requestDocument()); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	if cfg.StartURL != "" {
		if err := s.Navigate(ctx, cfg.StartURL); err != nil {
			s.Close()
			return nil, err
		}
	}
	logger.Info("Browser session ready.")
	return s, nil
}

func newSession(tabCtx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	s := &Session{
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger,
		cfg:    cfg,
		subs:   make(map[int]chan struct{}),
		lastX:  400,
		lastY:  300,
	}
	s.runActionsFunc = s.runActions
	return s
}

// Close shuts the tab down. Subscribers see their channels closed through their own contexts.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// runActions executes actions on the tab, canceled by either the tab or ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := page.CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

// run applies the per-operation timeout and labels deadline failures.
func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.runActionsFunc(opCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		s.logger.Debug("CDP operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("session: %s timed out after %v: %w", op, timeout, context.DeadlineExceeded)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("session: %s: %w", op, err)
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return defaultActionTimeout
}

func (s *Session) snapshotTimeout() time.Duration {
	if s.cfg.SnapshotTimeout > 0 {
		return s.cfg.SnapshotTimeout
	}
	return defaultSnapshotTimeout
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, "location", s.actionTimeout(), chromedp.Location(&u))
	return u, err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))
	return s.run(ctx, "navigate", s.snapshotTimeout(), chromedp.Navigate(url))
}

// Snapshot captures every document reachable from the tab, frames and shadow roots
// included, with the computed styles the visibility rules need.
func (s *Session) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	var snap *dom.Snapshot
	err := s.run(ctx, "snapshot", s.snapshotTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		docs, strs, err := domsnapshot.CaptureSnapshot(dom.SnapshotStyles).Do(ctx)
		if err != nil {
			return err
		}
		snap = dom.FromCDP(docs, strs)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Mutations subscribes to document changes. Each subscriber holds at most one pending
// signal, so a burst of DOM events wakes a waiter once.
func (s *Session) Mutations(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Session) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// onEvent runs on chromedp's event loop and must not block.
func (s *Session) onEvent(ev interface{}) {
	switch ev.(type) {
	case *cdpdom.EventDocumentUpdated:
		s.notify()
		// The old node ids are gone; ask for the new document so events keep flowing.
		go func() {
			if err := s.runActionsFunc(s.ctx, requestDocument()); err != nil && s.ctx.Err() == nil {
				s.logger.Debug("Re-requesting document failed.", zap.Error(err))
			}
		}()
	case *cdpdom.EventChildNodeInserted,
		*cdpdom.EventChildNodeRemoved,
		*cdpdom.EventChildNodeCountUpdated,
		*cdpdom.EventSetChildNodes,
		*cdpdom.EventAttributeModified,
		*cdpdom.EventAttributeRemoved,
		*cdpdom.EventCharacterDataModified,
		*cdpdom.EventShadowRootPushed,
		*cdpdom.EventShadowRootPopped,
		*cdpdom.EventPseudoElementAdded:
		s.notify()
	}
}

func requestDocument() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdpdom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		return err
	})
}

// Sleep pauses for d on the tab's clock, returning early when ctx or the tab ends.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return s.runActionsFunc(ctx, chromedp.Sleep(d))
}
