package results

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MrWong99/betterspeak/internal/detect"
)

var _ Store = (*Badger)(nil)

// Key layout:
//
//	run/<id>                      msgpack-encoded SessionMetrics
//	at/<created unix nanos>/<id>  empty; orders List newest first
var (
	runPrefix = []byte("run/")
	atPrefix  = []byte("at/")
)

// BadgerOptions configures [NewBadger].
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger's internal log output. Defaults to
	// slog.Default() at warn level and above.
	Logger *slog.Logger
}

// Badger is a [Store] backed by an embedded BadgerDB. Values are encoded
// with msgpack.
type Badger struct {
	db *badger.DB
}

// NewBadger opens or creates a BadgerDB store.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("results: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: log.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("results: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func runKey(id string) []byte {
	return append(append([]byte{}, runPrefix...), id...)
}

func atKey(m detect.SessionMetrics) []byte {
	k := make([]byte, 0, len(atPrefix)+9+len(m.RunID))
	k = append(k, atPrefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(m.CreatedAt.UnixNano()))
	k = append(k, '/')
	return append(k, m.RunID...)
}

// Save implements [Store].
func (s *Badger) Save(_ context.Context, m detect.SessionMetrics) error {
	if m.RunID == "" {
		return errEmptyID
	}
	val, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("results: encode run %s: %w", m.RunID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		// Drop the index entry of a replaced run.
		if old, err := getRun(txn, m.RunID); err == nil {
			if err := txn.Delete(atKey(old)); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := txn.Set(runKey(m.RunID), val); err != nil {
			return err
		}
		return txn.Set(atKey(m), nil)
	})
	if err != nil {
		return fmt.Errorf("results: save run %s: %w", m.RunID, err)
	}
	return nil
}

// Get implements [Store].
func (s *Badger) Get(_ context.Context, id string) (detect.SessionMetrics, error) {
	var m detect.SessionMetrics
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = getRun(txn, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return detect.SessionMetrics{}, err
		}
		return detect.SessionMetrics{}, fmt.Errorf("results: get run %s: %w", id, err)
	}
	return m, nil
}

// List implements [Store].
func (s *Badger) List(_ context.Context, limit int) ([]detect.SessionMetrics, error) {
	limit = listLimit(limit)
	var out []detect.SessionMetrics
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = atPrefix
		iterOpts.PrefetchValues = false
		iterOpts.Reverse = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		seek := append(append([]byte{}, atPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(atPrefix) && len(out) < limit; it.Next() {
			key := it.Item().Key()
			id := string(key[len(atPrefix)+9:])
			m, err := getRun(txn, id)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("results: list runs: %w", err)
	}
	return out, nil
}

// Close implements [Store].
func (s *Badger) Close() error {
	return s.db.Close()
}

func getRun(txn *badger.Txn, id string) (detect.SessionMetrics, error) {
	item, err := txn.Get(runKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return detect.SessionMetrics{}, ErrNotFound
		}
		return detect.SessionMetrics{}, err
	}
	var m detect.SessionMetrics
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &m)
	})
	if err != nil {
		return detect.SessionMetrics{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return m, nil
}

// badgerLogger routes badger's printf-style logging into slog. Info and
// debug output is dropped; badger is chatty at those levels.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
