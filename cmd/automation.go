package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/applicants"
	"github.com/xkilldash9x/applicant-courier/internal/browser/humanoid"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/browser/resolver"
	"github.com/xkilldash9x/applicant-courier/internal/browser/session"
	"github.com/xkilldash9x/applicant-courier/internal/composer"
	"github.com/xkilldash9x/applicant-courier/internal/config"
	"github.com/xkilldash9x/applicant-courier/internal/engine"
	"github.com/xkilldash9x/applicant-courier/internal/pipeline"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

// Browser is a page that also accepts raw pacing input.
type Browser interface {
	page.Page
	humanoid.Executor
}

// Launcher opens a browser and returns it with its release function.
type Launcher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Browser, func(), error)

func launchSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Browser, func(), error) {
	s, err := session.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// automation is the assembled worker for one browsing context.
type automation struct {
	page     Browser
	engine   *engine.Engine
	composer *composer.Lifecycle
}

// assemble wires the resolver, pacing, board, composer, pipeline and engine over b.
// Runs started through the engine derive from ctx.
func assemble(ctx context.Context, cfg config.Interface, b Browser, st *store.Store, logger *zap.Logger) *automation {
	h := humanoid.New(cfg.Pacing(), logger, b)
	res := resolver.New(b, h, logger, cfg.Resolver().MutationDebounce)
	board := applicants.NewBoard(b, res, h, cfg.Resolver(), cfg.Pipeline(), logger)
	lc := composer.New(b, res, h, cfg.Composer(), cfg.Resolver().EditorWait, logger)

	// The pipeline polls the engine's stop flag, and the engine runs the pipeline.
	var eng *engine.Engine
	p := pipeline.New(pipeline.Deps{
		Page:     b,
		Board:    board,
		Composer: lc,
		Pacer:    h,
		Store:    st,
		Stopped:  func() bool { return eng != nil && eng.StopRequested() },
	}, cfg.Pipeline(), cfg.Pacing(), logger)
	eng = engine.New(ctx, p, logger)

	return &automation{page: b, engine: eng, composer: lc}
}

// ensureApplicantsPage navigates to startURL when given and checks that the tab shows an
// applicant list. force skips the check.
func ensureApplicantsPage(ctx context.Context, b Browser, startURL string, force bool) error {
	if startURL != "" {
		if err := b.Navigate(ctx, startURL); err != nil {
			return fmt.Errorf("failed to open %s: %w", startURL, err)
		}
	}
	u, err := b.URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read the tab URL: %w", err)
	}
	if !force && !applicants.IsApplicantsPage(u) {
		return fmt.Errorf("not an applicants page: %s (open the hiring applicants view or pass --force)", u)
	}
	return nil
}
