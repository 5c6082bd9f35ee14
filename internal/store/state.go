package store

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Run modes.
const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

// Well-known statuses.
const (
	StatusStopped = "Stopped"
	StatusRunning = "Running"
)

// DefaultTemplate is the message template a fresh install starts with.
const DefaultTemplate = "Hi {first_name}, thanks for applying for the {job_title} role. I would love to connect and share next steps."

// RunState is the persisted, operator-visible state of the automation.
type RunState struct {
	Running          bool   `json:"running"`
	Status           string `json:"status"`
	SentCount        int    `json:"sentCount"`
	CurrentCandidate string `json:"currentCandidate"`
	Mode             string `json:"mode"`
	Template         string `json:"template"`
	// SessionStartAt is unix milliseconds.
	SessionStartAt int64 `json:"sessionStartAt"`
	MaxPerSession  int   `json:"maxPerSession"`
}

// Defaults is the state every read starts from before stored fields are merged in.
func Defaults() RunState {
	return RunState{
		Running:          false,
		Status:           StatusStopped,
		SentCount:        0,
		CurrentCandidate: "-",
		Mode:             ModeManual,
		Template:         DefaultTemplate,
		SessionStartAt:   0,
		MaxPerSession:    25,
	}
}

// Auto reports whether dispatch is enabled.
func (s RunState) Auto() bool { return s.Mode == ModeAuto }

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	Running          *bool   `json:"running,omitempty"`
	Status           *string `json:"status,omitempty"`
	SentCount        *int    `json:"sentCount,omitempty" validate:"omitempty,gte=0"`
	CurrentCandidate *string `json:"currentCandidate,omitempty"`
	Mode             *string `json:"mode,omitempty" validate:"omitempty,oneof=manual auto"`
	Template         *string `json:"template,omitempty"`
	SessionStartAt   *int64  `json:"sessionStartAt,omitempty"`
	MaxPerSession    *int    `json:"maxPerSession,omitempty" validate:"omitempty,gt=0"`
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// Apply returns s with the patch's fields written over it.
func (p Patch) Apply(s RunState) RunState {
	if p.Running != nil {
		s.Running = *p.Running
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.SentCount != nil {
		s.SentCount = *p.SentCount
	}
	if p.CurrentCandidate != nil {
		s.CurrentCandidate = *p.CurrentCandidate
	}
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.Template != nil {
		s.Template = *p.Template
	}
	if p.SessionStartAt != nil {
		s.SessionStartAt = *p.SessionStartAt
	}
	if p.MaxPerSession != nil {
		s.MaxPerSession = *p.MaxPerSession
	}
	return s
}

// Stopped is the patch every terminal path writes: running off plus a status.
func Stopped(status string) Patch {
	return Patch{Running: Ptr(false), Status: Ptr(status)}
}

// decodeState merges a stored document over the defaults. A nil document is the defaults.
func decodeState(doc []byte) (RunState, error) {
	st := Defaults()
	if len(doc) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(doc, &st); err != nil {
		return Defaults(), err
	}
	return st, nil
}

func encodeState(st RunState) ([]byte, error) {
	return json.Marshal(st)
}
