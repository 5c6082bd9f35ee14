// Package pipeline works through the applicant list one candidate at a time: dedup check,
// open details, run the composer, record the outcome, pause, next.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/applicant-courier/internal/applicants"
	"github.com/xkilldash9x/applicant-courier/internal/browser/dom"
	"github.com/xkilldash9x/applicant-courier/internal/browser/page"
	"github.com/xkilldash9x/applicant-courier/internal/composer"
	"github.com/xkilldash9x/applicant-courier/internal/config"
	"github.com/xkilldash9x/applicant-courier/internal/observability"
	"github.com/xkilldash9x/applicant-courier/internal/store"
)

// Statuses written by a run.
const (
	StatusNoApplicants = "No applicants found (scroll list and retry)"
	StatusDuplicate    = "Skipped duplicate"
	StatusSent         = "Sent"
	StatusHistory      = "Skipped: already has messages"
)

const cleanupTimeout = 5 * time.Second

// Pacer is the slice of the pacing layer the loop itself uses.
type Pacer interface {
	ActionDelay(ctx context.Context) error
	RandomScroll(ctx context.Context) error
}

// Composer runs one candidate's panel.
type Composer interface {
	Run(ctx context.Context, req composer.Request) (*composer.Session, error)
	CloseAny(ctx context.Context) (bool, error)
}

// Store is the run state and dedup map.
type Store interface {
	State(ctx context.Context) (store.RunState, error)
	Patch(ctx context.Context, p store.Patch) (store.RunState, error)
	Has(ctx context.Context, key string) (bool, error)
	RecordNow(ctx context.Context, key string) error
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Page     page.Page
	Board    *applicants.Board
	Composer Composer
	Pacer    Pacer
	Store    Store
	// Stopped reports an out-of-band stop request. Optional.
	Stopped func() bool
}

// Pipeline drives sessions. One Run at a time; the engine enforces that.
type Pipeline struct {
	Deps
	limiter     *rate.Limiter
	maxFailures int
	logger      *zap.Logger
}

// New builds a pipeline. Dispatches are limited to pacing.MaxSendsPerMinute; zero leaves
// them unlimited.
func New(d Deps, cfg config.PipelineConfig, pacing config.PacingConfig, logger *zap.Logger) *Pipeline {
	limit := rate.Inf
	if pacing.MaxSendsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(pacing.MaxSendsPerMinute))
	}
	maxFailures := cfg.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Pipeline{
		Deps:        d,
		limiter:     rate.NewLimiter(limit, 1),
		maxFailures: maxFailures,
		logger:      logger.Named("pipeline"),
	}
}

// Run processes the list once. It returns nil when the run ends normally (list exhausted,
// cap reached, no applicants, switched off), ErrStopRequested when stopped and
// ErrConsecutiveFailures when paused. Every path leaves running=false except a run that was
// never started.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	st, err := p.Store.State(ctx)
	if err != nil {
		return fmt.Errorf("read run state: %w", err)
	}
	if !st.Running {
		p.logger.Debug("Run state is off; nothing to do.")
		return nil
	}

	logger, _ := observability.ForRun(p.logger)
	r := &run{Pipeline: p, logger: logger, sent: st.SentCount}
	r.adopt(st)
	logger.Info("Run started.", zap.String("mode", st.Mode), zap.Int("max_per_session", r.max))

	defer func() { err = r.finish(ctx, err) }()
	return r.loop(ctx)
}

// run is the state of one Run call.
type run struct {
	*Pipeline
	logger *zap.Logger

	sent        int
	max         int
	auto        bool
	template    string
	consecutive int
}

// adopt takes the operator-controlled settings from the latest state.
func (r *run) adopt(st store.RunState) {
	r.max = st.MaxPerSession
	if r.max <= 0 {
		r.max = store.Defaults().MaxPerSession
	}
	r.auto = st.Auto()
	r.template = st.Template
	if r.template == "" {
		r.template = store.DefaultTemplate
	}
}

func (r *run) loop(ctx context.Context) error {
	if err := r.report(ctx, store.Patch{Status: store.Ptr(store.StatusRunning)}); err != nil {
		return err
	}

	initial := r.Board.WaitForCandidates(ctx)
	if err := r.checkStop(ctx); err != nil {
		return err
	}
	if len(initial) == 0 {
		r.logger.Info("No applicants found.")
		return r.report(ctx, store.Stopped(StatusNoApplicants))
	}
	r.logger.Info("Applicants discovered.", zap.Int("count", len(initial)))

	for i := range initial {
		if err := r.checkStop(ctx); err != nil {
			return err
		}
		st, err := r.Store.State(ctx)
		if err != nil {
			return storeErr(err)
		}
		if !st.Running {
			r.logger.Info("Run state switched off; leaving the loop.")
			return nil
		}
		r.adopt(st)
		if r.sent >= r.max {
			r.logger.Info("Session cap reached.", zap.Int("sent", r.sent))
			return r.report(ctx, store.Stopped(fmt.Sprintf("Session cap reached (%d)", r.max)))
		}

		c, ok := r.slot(ctx, i, initial)
		if !ok {
			r.logger.Debug("Card became unavailable, skipping.", zap.Int("index", i))
			continue
		}

		if err := r.process(ctx, c, i); err != nil {
			if err := asStop(ctx, err); errors.Is(err, ErrStopRequested) || errors.Is(err, errStore) {
				return err
			}
			if halt := r.fail(ctx, c, err); halt != nil {
				return halt
			}
		} else {
			r.consecutive = 0
		}

		if err := r.safeDelay(ctx); err != nil {
			return err
		}
	}
	r.logger.Info("Applicant list exhausted.", zap.Int("sent", r.sent))
	return r.report(ctx, store.Patch{Running: store.Ptr(false)})
}

// slot picks the candidate at position i from a fresh capture, falling back to the initial
// list's entry while its card is still attached.
func (r *run) slot(ctx context.Context, i int, initial []applicants.Candidate) (applicants.Candidate, bool) {
	snap, err := r.Page.Snapshot(ctx)
	if err != nil {
		return initial[i], true
	}
	if latest := r.Board.FromSnapshot(ctx, snap); i < len(latest) {
		return latest[i], true
	}
	if _, ok := snap.Node(initial[i].Card); ok {
		return initial[i], true
	}
	return applicants.Candidate{}, false
}

// process handles one candidate. A nil error means sent, skipped or discarded.
func (r *run) process(ctx context.Context, c applicants.Candidate, i int) error {
	logger := r.logger.With(observability.Candidate(c.Name), observability.DedupKey(c.Key))
	if err := r.report(ctx, store.Patch{
		CurrentCandidate: store.Ptr(c.Name),
		Status:           store.Ptr(fmt.Sprintf("Processing %d", i+1)),
	}); err != nil {
		return err
	}

	seen, err := r.Store.Has(ctx, c.Key)
	if err != nil {
		return storeErr(err)
	}
	if seen {
		logger.Info("Already contacted; skipping.")
		r.closeStray(ctx)
		return r.report(ctx, store.Patch{CurrentCandidate: store.Ptr(c.Name), Status: store.Ptr(StatusDuplicate)})
	}
	if c.Messaged {
		logger.Info("Card shows a sent message; recording and skipping.")
		if err := r.record(ctx, c.Key); err != nil {
			return err
		}
		return r.report(ctx, store.Patch{CurrentCandidate: store.Ptr(c.Name), Status: store.Ptr(StatusDuplicate)})
	}

	if err := r.Page.ScrollIntoView(ctx, c.Card); err != nil {
		return fmt.Errorf("scroll to %s: %w", c.Name, err)
	}
	if err := r.Pacer.ActionDelay(ctx); err != nil {
		return err
	}
	if err := r.Board.OpenDetails(ctx, c); err != nil {
		return err
	}
	if err := r.safeDelay(ctx); err != nil {
		return err
	}
	if err := r.Board.WaitForPanel(ctx); err != nil {
		return err
	}

	sess, err := r.Composer.Run(ctx, composer.Request{
		Candidate:      c.Name,
		Key:            c.Key,
		Auto:           r.auto,
		Render:         r.render(c),
		BeforeDispatch: r.beforeDispatch,
	})
	if sess != nil && sess.Outcome == composer.OutcomeDispatched {
		// Sent is sent, whatever happened while closing.
		if rerr := r.record(ctx, c.Key); rerr != nil {
			return rerr
		}
		r.sent++
		logger.Info("Message sent.", zap.Int("sent", r.sent))
		return r.reportDetached(ctx, store.Patch{
			SentCount:        store.Ptr(r.sent),
			CurrentCandidate: store.Ptr(c.Name),
			Status:           store.Ptr(StatusSent),
		})
	}
	if err != nil {
		return err
	}

	switch sess.Outcome {
	case composer.OutcomeSkippedHistory:
		if err := r.record(ctx, c.Key); err != nil {
			return err
		}
		return r.report(ctx, store.Patch{CurrentCandidate: store.Ptr(c.Name), Status: store.Ptr(StatusHistory)})
	case composer.OutcomeDiscarded:
		logger.Info("Draft verified and discarded.")
	}
	return nil
}

// render fills the template once the panel is open.
func (r *run) render(c applicants.Candidate) func(*dom.Snapshot, int64) string {
	return func(snap *dom.Snapshot, dialog int64) string {
		name := applicants.PickBestName(c.Name, r.Board.DialogName(snap, dialog))
		return applicants.FillTemplate(r.template, applicants.Values{
			Name:      name,
			FirstName: applicants.FirstName(c.Name, name),
			JobTitle:  r.Board.JobTitle(snap),
		})
	}
}

func (r *run) beforeDispatch(ctx context.Context) error {
	if err := r.checkStop(ctx); err != nil {
		return err
	}
	return r.limiter.Wait(ctx)
}

// fail counts a failed candidate and returns non-nil when the run must halt.
func (r *run) fail(ctx context.Context, c applicants.Candidate, cause error) error {
	r.consecutive++
	r.logger.Warn("Candidate failed.", observability.Candidate(c.Name), zap.Error(cause),
		zap.Int("consecutive", r.consecutive))
	r.closeStray(ctx)

	if r.consecutive >= r.maxFailures {
		status := fmt.Sprintf("Paused: %d consecutive failures — %s", r.consecutive, cause)
		r.logger.Error("Halting after consecutive failures.", observability.Status(status))
		if err := r.report(ctx, store.Stopped(status)); err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConsecutiveFailures, cause)
	}
	return r.report(ctx, store.Patch{Status: store.Ptr("Skipped (error): " + cause.Error())})
}

func (r *run) checkStop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStopRequested, err)
	}
	if r.Stopped != nil && r.Stopped() {
		return ErrStopRequested
	}
	return nil
}

// safeDelay is the pause between steps: stop check, incidental scroll, pacing delay, stop
// check.
func (r *run) safeDelay(ctx context.Context) error {
	if err := r.checkStop(ctx); err != nil {
		return err
	}
	if err := r.Pacer.RandomScroll(ctx); err != nil {
		if stop := asStop(ctx, err); errors.Is(stop, ErrStopRequested) {
			return stop
		}
		r.logger.Debug("Incidental scroll failed.", zap.Error(err))
	}
	if err := r.Pacer.ActionDelay(ctx); err != nil {
		return asStop(ctx, err)
	}
	return r.checkStop(ctx)
}

func (r *run) closeStray(ctx context.Context) {
	if closed, err := r.Composer.CloseAny(ctx); err != nil {
		r.logger.Debug("Closing a stray panel failed.", zap.Error(err))
	} else if closed {
		r.logger.Debug("Closed a stray panel.")
	}
}

func (r *run) record(ctx context.Context, key string) error {
	cctx, cancel := context.WithTimeout(page.Detach(ctx), cleanupTimeout)
	defer cancel()
	if err := r.Store.RecordNow(cctx, key); err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *run) report(ctx context.Context, p store.Patch) error {
	if _, err := r.Store.Patch(ctx, p); err != nil {
		return storeErr(err)
	}
	if p.Status != nil {
		r.logger.Debug("Progress.", observability.Status(*p.Status))
	}
	return nil
}

func (r *run) reportDetached(ctx context.Context, p store.Patch) error {
	cctx, cancel := context.WithTimeout(page.Detach(ctx), cleanupTimeout)
	defer cancel()
	return r.report(cctx, p)
}

// finish writes the terminal status for abnormal endings.
func (r *run) finish(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	err = asStop(ctx, err)
	cleanup, cancel := context.WithTimeout(page.Detach(ctx), cleanupTimeout)
	defer cancel()

	switch {
	case errors.Is(err, ErrStopRequested):
		r.closeStray(cleanup)
		if rerr := r.report(cleanup, store.Stopped(store.StatusStopped)); rerr != nil {
			r.logger.Error("Could not record the stop.", zap.Error(rerr))
		}
		r.logger.Info("Run stopped.", zap.Int("sent", r.sent))
	case errors.Is(err, ErrConsecutiveFailures):
	default:
		r.logger.Error("Run failed.", zap.Error(err))
		if rerr := r.report(cleanup, store.Stopped("Error: "+err.Error())); rerr != nil {
			r.logger.Error("Could not record the failure.", zap.Error(rerr))
		}
	}
	return err
}
