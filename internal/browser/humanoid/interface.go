// internal/browser/humanoid/interface.go
package humanoid

import (
	"context"
	"time"
)

// Executor is the low-level surface the pacing layer drives. The CDP session implements it
// against a real tab; tests use an in-memory page whose Sleep returns at once and records
// the requested duration.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	MouseMove(ctx context.Context, x, y float64) error
	ScrollBy(ctx context.Context, dy float64) error
	ViewportHeight(ctx context.Context) (float64, error)
	// TypeChar and InsertParagraph deliver one keystroke to an editor node the way a user
	// would, so the page's framework observes genuine input.
	TypeChar(ctx context.Context, id int64, r rune) error
	InsertParagraph(ctx context.Context, id int64) error
}
