// internal/composer/errors.go
package composer

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a required element that never appeared. It costs the candidate,
	// not the run.
	ErrNotFound = errors.New("element not found")
	// ErrVerification means the editor never read back the message.
	ErrVerification = errors.New("message verification failed")
	// ErrStopRequested unwinds a run the operator stopped. It is never a failure.
	ErrStopRequested = errors.New("stop requested")
	// ErrIllegalTransition is returned by Next for an event the state does not accept.
	ErrIllegalTransition = errors.New("illegal composer transition")
)

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// stopped converts a context failure into ErrStopRequested. Other errors pass through.
func stopped(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		if errors.Is(err, ErrStopRequested) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStopRequested, err)
	}
	return err
}
