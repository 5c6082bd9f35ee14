// internal/composer/session.go
package composer

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/observability"
)

// Outcome is what a finished lifecycle did for its candidate.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDispatched
	OutcomeDiscarded
	OutcomeSkippedHistory
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "Dispatched"
	case OutcomeDiscarded:
		return "Discarded"
	case OutcomeSkippedHistory:
		return "SkippedHistory"
	default:
		return "None"
	}
}

// Transition is one entry of a session's log.
type Transition struct {
	From  State
	Event Event
	To    State
	At    time.Time
}

// Session is a single candidate's pass through the panel. It is never reused.
type Session struct {
	Candidate string
	Key       string

	// Node IDs from the snapshot the lifecycle last resolved them in. Zero means unknown.
	Editor    int64
	Dialog    int64
	Container int64
	Dispatch  int64

	State   State
	Outcome Outcome
	Message string
	// BestEffortClose is set when the panel could not be confirmed closed and Closed was
	// reported anyway.
	BestEffortClose bool
	Transitions     []Transition

	logger *zap.Logger
}

func newSession(req Request, logger *zap.Logger) *Session {
	return &Session{
		Candidate: req.Candidate,
		Key:       req.Key,
		State:     Idle,
		logger:    logger.With(observability.Candidate(req.Candidate), observability.DedupKey(req.Key)),
	}
}

func (s *Session) fire(e Event) error {
	to, err := Next(s.State, e)
	if err != nil {
		return err
	}
	s.Transitions = append(s.Transitions, Transition{From: s.State, Event: e, To: to, At: time.Now()})
	s.logger.Debug("Composer transition.", zap.Stringer("event", e),
		zap.Stringer("from", s.State), observability.State(to.String()))
	s.State = to
	return nil
}

// Path lists the states the session went through, starting at Idle.
func (s *Session) Path() []State {
	path := []State{Idle}
	for _, t := range s.Transitions {
		path = append(path, t.To)
	}
	return path
}
