// Package store persists the run state and the dedup map. Four backends share one
// read-merge-write implementation: badger (embedded, the default), postgres, redis and an
// in-process memory cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/config"
)

// ErrInvalidPatch is returned by Patch when a field is out of range; nothing is written.
var ErrInvalidPatch = errors.New("invalid state patch")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Storage keys, shared by every backend.
const (
	stateKey   = "lhm_state"
	sentMapKey = "lhm_sent_map"
)

// backend is the storage primitive a Store is built on.
type backend interface {
	name() string
	// loadState returns the stored document, or nil when none was written yet.
	loadState(ctx context.Context) ([]byte, error)
	saveState(ctx context.Context, doc []byte) error
	hasKey(ctx context.Context, key string) (bool, error)
	// putKeys writes dedup records. Without overwrite, existing records keep their time.
	putKeys(ctx context.Context, entries map[string]int64, overwrite bool) error
	sentMap(ctx context.Context) (map[string]int64, error)
	clearKeys(ctx context.Context) error
	// changes signals state writes made by other processes. Nil when the backend has no feed.
	changes(ctx context.Context) <-chan struct{}
	close() error
}

// Store is the run state record plus the dedup map. It is safe for concurrent use; writes
// from this process are serialized.
type Store struct {
	b      backend
	mu     sync.Mutex
	local  *notifier
	logger *zap.Logger
	now    func() time.Time
}

func newStore(b backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		b:      b,
		local:  newNotifier(),
		logger: logger.Named("store").With(zap.String("backend", b.name())),
		now:    time.Now,
	}
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Store, error) {
	var (
		b   backend
		err error
	)
	switch cfg.Backend {
	case config.BackendBadger, "":
		b, err = openBadger(cfg.Badger, logger)
	case config.BackendPostgres:
		b, err = openPostgres(ctx, cfg.Postgres.URL, logger)
	case config.BackendRedis:
		b, err = openRedis(ctx, cfg.Redis)
	case config.BackendMemory:
		b = newMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return newStore(b, logger), nil
}

// NewMemory is an empty in-process store.
func NewMemory(logger *zap.Logger) *Store {
	return newStore(newMemoryBackend(), logger)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.close()
}

func (s *Store) wrap(op string, err error) error {
	return fmt.Errorf("%s store: %s: %w", s.b.name(), op, err)
}

// State reads the run state merged over the defaults.
func (s *Store) State(ctx context.Context) (RunState, error) {
	doc, err := s.b.loadState(ctx)
	if err != nil {
		return Defaults(), s.wrap("load state", err)
	}
	st, err := decodeState(doc)
	if err != nil {
		return st, s.wrap("decode state", err)
	}
	return st, nil
}

// Patch reads the latest state, applies p and writes the result back.
func (s *Store) Patch(ctx context.Context, p Patch) (RunState, error) {
	if err := validate.Struct(p); err != nil {
		cur, _ := s.State(ctx)
		return cur, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patchLocked(ctx, p)
}

func (s *Store) patchLocked(ctx context.Context, p Patch) (RunState, error) {
	cur, err := s.State(ctx)
	if err != nil {
		return cur, err
	}
	next := p.Apply(cur)
	doc, err := encodeState(next)
	if err != nil {
		return cur, s.wrap("encode state", err)
	}
	if err := s.b.saveState(ctx, doc); err != nil {
		return cur, s.wrap("save state", err)
	}
	s.local.notify()
	return next, nil
}

// Has reports whether key was ever recorded.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	ok, err := s.b.hasKey(ctx, key)
	if err != nil {
		return false, s.wrap("lookup "+key, err)
	}
	return ok, nil
}

// RecordNow marks key as contacted at the current time.
func (s *Store) RecordNow(ctx context.Context, key string) error {
	if err := s.b.putKeys(ctx, map[string]int64{key: s.now().UnixMilli()}, true); err != nil {
		return s.wrap("record "+key, err)
	}
	return nil
}

// SentMap returns every dedup record, key to unix milliseconds.
func (s *Store) SentMap(ctx context.Context) (map[string]int64, error) {
	m, err := s.b.sentMap(ctx)
	if err != nil {
		return nil, s.wrap("read sent map", err)
	}
	return m, nil
}

// Import bulk-loads dedup records. Keys already present keep their original time.
func (s *Store) Import(ctx context.Context, entries map[string]int64) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.b.putKeys(ctx, entries, false); err != nil {
		return s.wrap("import", err)
	}
	s.logger.Info("Imported dedup records.", zap.Int("count", len(entries)))
	return nil
}

// ClearAll empties the dedup map and resets the session counters.
func (s *Store) ClearAll(ctx context.Context) (RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.b.clearKeys(ctx); err != nil {
		return Defaults(), s.wrap("clear sent map", err)
	}
	s.logger.Info("Dedup map cleared.")
	return s.patchLocked(ctx, Patch{SentCount: Ptr(0), CurrentCandidate: Ptr("-"), Status: Ptr(StatusStopped)})
}

// Watch emits the current state and then every distinct state after a change, from this
// process or, where the backend supports it, from others. A slow reader only sees the
// latest state. The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context) <-chan RunState {
	out := make(chan RunState, 1)
	local := s.local.subscribe(ctx)
	external := s.b.changes(ctx)

	go func() {
		defer close(out)
		defer func() {
			// Let the backend feed wind down before the store can be closed.
			if external != nil {
				for range external {
				}
			}
		}()
		var last RunState
		first := true
		emit := func() bool {
			st, err := s.State(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				s.logger.Warn("Watch could not read state.", zap.Error(err))
				return true
			}
			if !first && st == last {
				return true
			}
			first, last = false, st
			select {
			case <-out:
			default:
			}
			select {
			case out <- st:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-local:
				if !ok {
					return
				}
			case _, ok := <-external:
				if !ok {
					external = nil
					continue
				}
			}
			if !emit() {
				return
			}
		}
	}()
	return out
}

// notifier fans a change signal out to subscribers. Bursts collapse into one pending signal.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan struct{}
	next int
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan struct{})}
}

func (n *notifier) subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs, id)
		close(ch)
		n.mu.Unlock()
	}()
	return ch
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
