// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/pipeline"
)

// ErrAlreadyRunning is returned by Run while another run is active.
var ErrAlreadyRunning = errors.New("automation is already running")

// Runner is one automation pass.
type Runner interface {
	Run(ctx context.Context) error
}

// Engine owns the single automation worker of a browsing context. At most one run is active
// at a time; a second start while running is a no-op.
type Engine struct {
	base   context.Context
	runner Runner
	logger *zap.Logger

	running atomic.Bool
	stop    atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine. Asynchronous runs derive from base, so cancelling base ends them.
func New(base context.Context, runner Runner, logger *zap.Logger) *Engine {
	return &Engine{
		base:   base,
		runner: runner,
		logger: logger.Named("engine"),
	}
}

// StopRequested reports the stop flag. The pipeline polls it at every suspension point.
func (e *Engine) StopRequested() bool { return e.stop.Load() }

// Running reports whether a run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Start clears the stop flag and launches a run in the background. It reports false when a
// run was already active.
func (e *Engine) Start() bool {
	e.stop.Store(false)
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Debug("Run requested while running; ignoring.")
		return false
	}
	ctx := e.arm(e.base)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(ctx)
	}()
	return true
}

// Run executes a run in the foreground.
func (e *Engine) Run(ctx context.Context) error {
	e.stop.Store(false)
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return e.execute(e.arm(ctx))
}

// Stop raises the stop flag and cancels the active run, if any.
func (e *Engine) Stop() {
	e.stop.Store(true)
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		e.logger.Info("Stop requested; cancelling the active run.")
		cancel()
	}
}

// Wait blocks until background runs have returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) arm(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	return ctx
}

func (e *Engine) execute(ctx context.Context) error {
	defer func() {
		e.mu.Lock()
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.mu.Unlock()
		e.running.Store(false)
	}()

	err := e.runner.Run(ctx)
	switch {
	case err == nil:
		e.logger.Info("Run finished.")
	case errors.Is(err, pipeline.ErrStopRequested):
		e.logger.Info("Run stopped.")
	case errors.Is(err, pipeline.ErrConsecutiveFailures):
		e.logger.Warn("Run paused.", zap.Error(err))
	default:
		e.logger.Error("Run failed with unexpected error.", zap.Error(err))
	}
	return err
}
