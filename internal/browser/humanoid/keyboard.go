package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"
)

// minKeyGap keeps keystrokes from collapsing onto each other when the gaussian draws low.
const minKeyGap = 25 * time.Millisecond

// Type enters text into an editor one keystroke at a time. Newlines become paragraph
// breaks. Gaps are gaussian around the configured mean and modulated by pink noise, which
// gives the slow drift in speed real typists show.
func (h *Humanoid) Type(ctx context.Context, id int64, text string) error {
	for i, r := range []rune(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r == '\r' {
			continue
		}
		if err := h.executor.Sleep(ctx, h.keyGap()); err != nil {
			return err
		}
		var err error
		if r == '\n' {
			err = h.executor.InsertParagraph(ctx, id)
		} else {
			err = h.executor.TypeChar(ctx, id, r)
		}
		if err != nil {
			return fmt.Errorf("humanoid: keystroke %d failed: %w", i, err)
		}
	}
	return nil
}

func (h *Humanoid) keyGap() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	gap := h.cfg.TypeMeanMs + h.rng.NormFloat64()*h.cfg.TypeStdDevMs
	gap *= 1 + 0.2*h.rhythm.Next()
	d := time.Duration(math.Round(gap)) * time.Millisecond
	if d < minKeyGap {
		return minKeyGap
	}
	return d
}
