// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/config"
)

// Humanoid paces the automation: randomized waits between actions, incidental scrolling,
// idle cursor motion and keystroke timing. Apart from the random sources and the cursor
// position it keeps no state between calls.
type Humanoid struct {
	// mu guards rng, noise and pos. Executor calls happen outside the lock.
	mu       sync.Mutex
	cfg      config.PacingConfig
	logger   *zap.Logger
	executor Executor

	rng       *rand.Rand
	noiseX    *perlin.Perlin
	noiseY    *perlin.Perlin
	noiseTime float64
	rhythm    *PinkNoiseGenerator
	pos       point
}

type point struct{ X, Y float64 }

// New creates a Humanoid seeded from the clock.
func New(cfg config.PacingConfig, logger *zap.Logger, executor Executor) *Humanoid {
	return newSeeded(cfg, logger, executor, time.Now().UnixNano())
}

// NewTestHumanoid is a deterministic Humanoid on the default pacing windows.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	return newSeeded(config.NewDefaultConfig().Pacing(), zap.NewNop(), executor, seed)
}

// NewTestHumanoidWithConfig is NewTestHumanoid with explicit windows.
func NewTestHumanoidWithConfig(cfg config.PacingConfig, executor Executor, seed int64) *Humanoid {
	return newSeeded(cfg, zap.NewNop(), executor, seed)
}

func newSeeded(cfg config.PacingConfig, logger *zap.Logger, executor Executor, seed int64) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(seed))
	// Standard Perlin parameters: alpha 2, beta 2, three octaves.
	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rng,
		noiseX:   perlin.NewPerlin(2, 2, 3, seed),
		noiseY:   perlin.NewPerlin(2, 2, 3, seed+1),
		rhythm:   NewPinkNoiseGenerator(rand.New(rand.NewSource(seed+2)), 12),
		pos:      point{X: 400, Y: 300},
	}
}

// Config returns the pacing windows in use.
func (h *Humanoid) Config() config.PacingConfig { return h.cfg }

func (h *Humanoid) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

// uniformMs draws a whole number of milliseconds in [min, max].
func (h *Humanoid) uniformMs(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Millisecond
	}
	return time.Duration(min+h.intn(max-min+1)) * time.Millisecond
}
