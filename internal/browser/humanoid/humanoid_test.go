package humanoid

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/applicant-courier/internal/config"
)

func TestDelay(t *testing.T) {
	ctx := context.Background()

	t.Run("draws inside the inclusive window", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 1)
		for i := 0; i < 200; i++ {
			require.NoError(t, h.Delay(ctx, 1000, 1003))
		}
		seen := map[time.Duration]bool{}
		for _, d := range exec.sleeps {
			assert.GreaterOrEqual(t, d, 1000*time.Millisecond)
			assert.LessOrEqual(t, d, 1003*time.Millisecond)
			seen[d] = true
		}
		assert.Len(t, seen, 4, "both ends of the window are reachable")
	})

	t.Run("degenerate window", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 1)
		require.NoError(t, h.Delay(ctx, 250, 250))
		assert.Equal(t, []time.Duration{250 * time.Millisecond}, exec.sleeps)
	})

	t.Run("action delay uses the configured window", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 7)
		for i := 0; i < 50; i++ {
			require.NoError(t, h.ActionDelay(ctx))
		}
		for _, d := range exec.sleeps {
			assert.GreaterOrEqual(t, d, time.Second)
			assert.LessOrEqual(t, d, 6*time.Second)
		}
	})

	t.Run("cancelled before the wait", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 1)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, h.Delay(cctx, 10, 20), context.Canceled)
		assert.Empty(t, exec.sleeps)
	})

	t.Run("cancelled during the wait", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 1)
		cctx, cancel := context.WithCancel(ctx)
		exec.MockSleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return nil
		}
		assert.ErrorIs(t, h.Delay(cctx, 10, 20), context.Canceled)
	})
}

func TestHumanDelay(t *testing.T) {
	ctx := context.Background()

	t.Run("idles the cursor for the whole pause", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 3)
		require.NoError(t, h.HumanDelay(ctx))

		total := exec.totalSlept()
		assert.GreaterOrEqual(t, total, 3*time.Second)
		assert.LessOrEqual(t, total, 8*time.Second)
		assert.Len(t, exec.moves, len(exec.sleeps))
		for _, mv := range exec.moves {
			assert.InDelta(t, 400, mv[0], 10, "drift stays near the resting position")
			assert.InDelta(t, 300, mv[1], 10)
		}
	})

	t.Run("plain sleep when hesitation is disabled", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Pacing()
		cfg.HesitateEnabled = false
		exec := newMockExecutor()
		h := NewTestHumanoidWithConfig(cfg, exec, 3)
		require.NoError(t, h.HumanDelay(ctx))
		assert.Len(t, exec.sleeps, 1)
		assert.Empty(t, exec.moves)
	})

	t.Run("move failures do not shorten the pause", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockMouseMove = func(context.Context, float64, float64) error { return errors.New("detached") }
		h := NewTestHumanoid(exec, 3)
		require.NoError(t, h.Hesitate(ctx, 500*time.Millisecond))
		assert.Equal(t, 500*time.Millisecond, exec.totalSlept())
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 3)
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		exec.MockSleep = func(ctx context.Context, d time.Duration) error {
			calls++
			if calls == 2 {
				cancel()
			}
			return ctx.Err()
		}
		assert.ErrorIs(t, h.Hesitate(cctx, time.Minute), context.Canceled)
		assert.Equal(t, 2, calls)
	})
}

func TestRandomScroll(t *testing.T) {
	ctx := context.Background()

	t.Run("magnitude follows the viewport", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 11)
		for i := 0; i < 300; i++ {
			require.NoError(t, h.RandomScroll(ctx))
		}
		up, down := 0, 0
		for _, dy := range exec.scrolls {
			mag := math.Abs(dy)
			// 0.45 * 900 = 405
			assert.GreaterOrEqual(t, mag, 60.0)
			assert.LessOrEqual(t, mag, 405.0)
			if dy < 0 {
				up++
			} else {
				down++
			}
		}
		assert.Positive(t, up)
		assert.Positive(t, down)
	})

	t.Run("small viewports use the floor", func(t *testing.T) {
		exec := newMockExecutor()
		exec.viewport = 100
		h := NewTestHumanoid(exec, 11)
		for i := 0; i < 100; i++ {
			require.NoError(t, h.RandomScroll(ctx))
		}
		for _, dy := range exec.scrolls {
			assert.LessOrEqual(t, math.Abs(dy), 120.0)
		}
	})

	t.Run("viewport errors fall back to the floor", func(t *testing.T) {
		exec := newMockExecutor()
		exec.MockViewportHeight = func(context.Context) (float64, error) { return 0, errors.New("no window") }
		h := NewTestHumanoid(exec, 11)
		require.NoError(t, h.RandomScroll(ctx))
		require.Len(t, exec.scrolls, 1)
		assert.LessOrEqual(t, math.Abs(exec.scrolls[0]), 120.0)
	})
}

func TestType(t *testing.T) {
	ctx := context.Background()

	t.Run("keystrokes and paragraph breaks", func(t *testing.T) {
		exec := newMockExecutor()
		h := NewTestHumanoid(exec, 5)
		require.NoError(t, h.Type(ctx, 42, "Hi\r\nJo"))
		assert.Equal(t, "Hi\nJo", string(exec.typed))
		assert.Equal(t, 1, exec.paragraphs)
		require.Len(t, exec.sleeps, 5)
		for _, d := range exec.sleeps {
			assert.GreaterOrEqual(t, d, minKeyGap)
		}
	})

	t.Run("keystroke failures are wrapped", func(t *testing.T) {
		exec := newMockExecutor()
		boom := errors.New("node detached")
		exec.MockTypeChar = func(context.Context, int64, rune) error { return boom }
		h := NewTestHumanoid(exec, 5)
		err := h.Type(ctx, 42, "x")
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "keystroke 0")
	})

	t.Run("same seed, same rhythm", func(t *testing.T) {
		a, b := newMockExecutor(), newMockExecutor()
		require.NoError(t, NewTestHumanoid(a, 9).Type(ctx, 1, "hello world"))
		require.NoError(t, NewTestHumanoid(b, 9).Type(ctx, 1, "hello world"))
		assert.Equal(t, a.sleeps, b.sleeps)
	})
}

func TestPinkNoise(t *testing.T) {
	g := NewPinkNoiseGenerator(rand.New(rand.NewSource(1)), 0)
	require.Len(t, g.sources, 12)
	assert.InDelta(t, 1.0, g.cdf[len(g.cdf)-1], 1e-9)

	var prev, jumps float64
	const n = 5000
	for i := 0; i < n; i++ {
		v := g.Next()
		assert.LessOrEqual(t, math.Abs(v), math.Sqrt(12))
		if i > 0 {
			jumps += math.Abs(v - prev)
		}
		prev = v
	}
	// Consecutive samples are correlated: steps are much smaller than the range.
	assert.Less(t, jumps/(n-1), 0.5)
}
