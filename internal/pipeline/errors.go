package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/applicant-courier/internal/composer"
)

var (
	// ErrStopRequested unwinds a run the operator stopped.
	ErrStopRequested = composer.ErrStopRequested
	// ErrConsecutiveFailures ends a run paused after too many failed candidates in a row.
	ErrConsecutiveFailures = errors.New("too many consecutive failures")

	errStore = errors.New("state store")
)

// asStop classifies err as a stop when the run context is done. Other errors pass through.
func asStop(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrStopRequested) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStopRequested, err)
	}
	return err
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", errStore, err)
}
