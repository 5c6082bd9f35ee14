package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Sleep passes a pause straight to the executor.
func (h *Humanoid) Sleep(ctx context.Context, d time.Duration) error {
	return h.executor.Sleep(ctx, d)
}

// Delay waits a uniform random duration in [minMs, maxMs] milliseconds. Cancellation is
// checked before and after the wait.
func (h *Humanoid) Delay(ctx context.Context, minMs, maxMs int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.executor.Sleep(ctx, h.uniformMs(minMs, maxMs)); err != nil {
		return err
	}
	return ctx.Err()
}

// ActionDelay is the inter-action pause.
func (h *Humanoid) ActionDelay(ctx context.Context) error {
	return h.Delay(ctx, h.cfg.ActionMinMs, h.cfg.ActionMaxMs)
}

// HumanDelay is the longer "reading the page" pause. The cursor idles while it runs.
func (h *Humanoid) HumanDelay(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.Hesitate(ctx, h.uniformMs(h.cfg.HumanMinMs, h.cfg.HumanMaxMs)); err != nil {
		return err
	}
	return ctx.Err()
}

// Hesitate spends d with small perlin-driven cursor drift around the current position.
// Time is accounted from the requested pauses, not the wall clock.
func (h *Humanoid) Hesitate(ctx context.Context, d time.Duration) error {
	if !h.cfg.HesitateEnabled {
		return h.executor.Sleep(ctx, d)
	}
	for remaining := d; remaining > 0; {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.mu.Lock()
		h.noiseTime += 0.15
		amp := h.cfg.HesitateAmplitude
		target := point{
			X: h.pos.X + amp*h.noiseX.Noise1D(h.noiseTime),
			Y: h.pos.Y + amp*h.noiseY.Noise1D(h.noiseTime),
		}
		step := time.Duration(50+h.rng.Intn(100)) * time.Millisecond
		h.mu.Unlock()

		if err := h.executor.MouseMove(ctx, target.X, target.Y); err != nil {
			// Idle motion is cosmetic; keep the pause even when the move fails.
			h.logger.Debug("Idle cursor move failed.", zap.Error(err))
		}
		if step > remaining {
			step = remaining
		}
		if err := h.executor.Sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step
	}
	return nil
}

// RandomScroll nudges the page up or down by uniform(min, max(floor, fraction*viewport))
// pixels, the way a reader drifts while scanning a list.
func (h *Humanoid) RandomScroll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upper := h.cfg.ScrollFloorPx
	if vh, err := h.executor.ViewportHeight(ctx); err == nil {
		upper = int(math.Max(float64(h.cfg.ScrollFloorPx), math.Floor(h.cfg.ScrollViewportFraction*vh)))
	} else {
		h.logger.Debug("Viewport height unavailable; using the scroll floor.", zap.Error(err))
	}
	lower := h.cfg.ScrollMinPx
	if upper < lower {
		upper = lower
	}
	h.mu.Lock()
	amount := float64(lower + h.rng.Intn(upper-lower+1))
	if h.rng.Intn(2) == 0 {
		amount = -amount
	}
	h.mu.Unlock()
	return h.executor.ScrollBy(ctx, amount)
}
