package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applicant-courier/internal/config"
)

var (
	badgerStateKey   = []byte(stateKey)
	badgerSentPrefix = []byte(sentMapKey + "/")
)

// badgerBackend is the embedded default. State is one key; each dedup record is a key under
// the sent-map prefix holding the decimal timestamp.
type badgerBackend struct {
	db     *badger.DB
	logger *zap.Logger
}

func openBadger(cfg config.BadgerConfig, logger *zap.Logger) (*badgerBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir, err := homedir.Expand(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("expand badger dir %q: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(badgerLogger{logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerBackend{db: db, logger: logger}, nil
}

// NewBadger opens a badger-backed store.
func NewBadger(cfg config.BadgerConfig, logger *zap.Logger) (*Store, error) {
	b, err := openBadger(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newStore(b, logger), nil
}

func (b *badgerBackend) name() string { return "badger" }

func sentKey(key string) []byte {
	return append(append([]byte(nil), badgerSentPrefix...), key...)
}

func (b *badgerBackend) loadState(context.Context) ([]byte, error) {
	var doc []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerStateKey)
		if err != nil {
			return err
		}
		doc, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return doc, err
}

func (b *badgerBackend) saveState(_ context.Context, doc []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerStateKey, doc)
	})
}

func (b *badgerBackend) hasKey(_ context.Context, key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(sentKey(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *badgerBackend) putKeys(_ context.Context, entries map[string]int64, overwrite bool) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for k, at := range entries {
			bk := sentKey(k)
			if !overwrite {
				_, err := txn.Get(bk)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
			if err := txn.Set(bk, []byte(strconv.FormatInt(at, 10))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *badgerBackend) sentMap(context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(badgerSentPrefix); it.ValidForPrefix(badgerSentPrefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(badgerSentPrefix):])
			err := item.Value(func(val []byte) error {
				at, err := strconv.ParseInt(string(val), 10, 64)
				if err != nil {
					return fmt.Errorf("record %q: %w", key, err)
				}
				out[key] = at
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (b *badgerBackend) clearKeys(context.Context) error {
	return b.db.DropPrefix(badgerSentPrefix)
}

// changes follows writes to the state key through badger's subscription feed.
func (b *badgerBackend) changes(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		err := b.db.Subscribe(ctx, func(*badger.KVList) error {
			select {
			case ch <- struct{}{}:
			default:
			}
			return nil
		}, []pb.Match{{Prefix: badgerStateKey}})
		if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			b.logger.Warn("Badger subscription ended.", zap.Error(err))
		}
	}()
	return ch
}

func (b *badgerBackend) close() error {
	return b.db.Close()
}

// badgerLogger routes badger's own logging into zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }
