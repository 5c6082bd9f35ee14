// File: internal/observability/fields.go
package observability

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Field keys shared by every component so log queries stay uniform.
const (
	KeyRun       = "run_id"
	KeyCandidate = "candidate"
	KeyDedupKey  = "key"
	KeyState     = "state"
	KeyTier      = "tier"
	KeyAttempt   = "attempt"
	KeyStatus    = "status"
)

func Candidate(name string) zap.Field { return zap.String(KeyCandidate, name) }
func DedupKey(key string) zap.Field   { return zap.String(KeyDedupKey, key) }
func State(s string) zap.Field        { return zap.String(KeyState, s) }
func Tier(t int) zap.Field            { return zap.Int(KeyTier, t) }
func Attempt(n int) zap.Field         { return zap.Int(KeyAttempt, n) }
func Status(s string) zap.Field       { return zap.String(KeyStatus, s) }

// ForRun returns a child logger tagged with a fresh run ID, and the ID itself.
func ForRun(base *zap.Logger) (*zap.Logger, string) {
	id := uuid.NewString()
	return base.With(zap.String(KeyRun, id)), id
}
