// internal/browser/page/context.go
package page

import (
	"context"
	"time"
)

// CombineContext derives from primary, keeping its values, and is canceled as soon as
// either primary or secondary is done. chromedp keeps its target in the primary context,
// so operational deadlines travel in secondary.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                    { return nil }
func (valueOnlyContext) Err() error                               { return nil }

// Detach keeps the values of ctx but drops its deadline and cancellation. Cleanup that must
// still reach the browser after a stop (closing a composer panel) runs on a detached context
// with its own short timeout.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
