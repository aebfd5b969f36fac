// Package ledger is the durable, versioned claim store. It owns every
// claim state transition: a candidate either becomes the active fact,
// supersedes an old one, or is parked for review. Claims are never deleted.
//
// Storage is BadgerDB. Key layout:
//
//	claim/<id>                      claim JSON
//	active/<competitor|type|sub>    id of the active claim for the key
//	bykey/<competitor|type|sub>/<ts>/<id>  version index
//	commit/<idempotency-hash>       id committed for a replayed candidate
//	event/<oldID>|<newID>           change-event dedup marker
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ppiankov/competia/internal/model"
)

// ErrSupersessionConflict is returned when another writer committed a
// claim for the same key between the caller's read and its commit.
var ErrSupersessionConflict = errors.New("concurrent supersession conflict")

// ErrNotFound is returned when a claim id does not exist.
var ErrNotFound = errors.New("claim not found")

// Ledger is the claim store. Safe for concurrent use; commits for the same
// claim key are serialized by per-key locks.
type Ledger struct {
	db       *badger.DB
	minScore int
	logger   *slog.Logger
	locks    sync.Map // key string -> *sync.Mutex
}

// Open opens (or creates) the ledger at the configured path.
func Open(cfg model.LedgerConfig, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("ledger path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	minScore := cfg.MinScore
	if minScore <= 0 {
		minScore = 40
	}

	return &Ledger{db: db, minScore: minScore, logger: logger}, nil
}

// OpenInMemory opens a non-persistent ledger for tests.
func OpenInMemory(minScore int) (*Ledger, error) {
	return Open(model.LedgerConfig{InMemory: true, MinScore: minScore}, slog.Default())
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// MinScore returns the configured confidence floor for active claims.
func (l *Ledger) MinScore() int {
	return l.minScore
}

// keyLock returns the mutex serializing writers for one claim key.
func (l *Ledger) keyLock(key model.ClaimKey) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(key.String(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get loads a claim by id.
func (l *Ledger) Get(id string) (*model.Claim, error) {
	var claim *model.Claim
	err := l.db.View(func(txn *badger.Txn) error {
		c, err := getClaim(txn, id)
		if err != nil {
			return err
		}
		claim = c
		return nil
	})
	return claim, err
}

// ActiveClaim returns the active claim for a key, or nil when none exists.
func (l *Ledger) ActiveClaim(key model.ClaimKey) (*model.Claim, error) {
	var claim *model.Claim
	err := l.db.View(func(txn *badger.Txn) error {
		id, err := getActiveID(txn, key)
		if err != nil {
			return err
		}
		if id == "" {
			return nil
		}
		c, err := getClaim(txn, id)
		if err != nil {
			return err
		}
		claim = c
		return nil
	})
	return claim, err
}

// History returns every claim version recorded for a key, oldest first.
func (l *Ledger) History(key model.ClaimKey) ([]*model.Claim, error) {
	var claims []*model.Claim
	prefix := []byte(byKeyPrefix(key))
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 32})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var id string
			if err := it.Item().Value(func(v []byte) error {
				id = string(v)
				return nil
			}); err != nil {
				return err
			}
			c, err := getClaim(txn, id)
			if err != nil {
				return err
			}
			claims = append(claims, c)
		}
		return nil
	})
	return claims, err
}

// MarkEvent records the (previous, new) claim pair for change-event dedup.
// It returns true the first time a pair is seen and false on replays.
func (l *Ledger) MarkEvent(previousID, newID string) (bool, error) {
	key := []byte(eventKey(previousID, newID))
	first := false
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // already emitted
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		first = true
		return txn.Set(key, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	})
	return first, err
}

// --- key construction and raw accessors ---

func claimKey(id string) string { return "claim/" + id }

func activeKey(key model.ClaimKey) string { return "active/" + key.String() }

func commitKey(hash string) string { return "commit/" + hash }

func eventKey(previousID, newID string) string { return "event/" + previousID + "|" + newID }

func byKeyPrefix(key model.ClaimKey) string { return "bykey/" + key.String() + "/" }

func byKeyIndex(key model.ClaimKey, at time.Time, id string) string {
	return fmt.Sprintf("%s%020d/%s", byKeyPrefix(key), at.UnixNano(), id)
}

func getClaim(txn *badger.Txn, id string) (*model.Claim, error) {
	item, err := txn.Get([]byte(claimKey(id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var claim model.Claim
	if err := item.Value(func(v []byte) error {
		return json.Unmarshal(v, &claim)
	}); err != nil {
		return nil, fmt.Errorf("decode claim %s: %w", id, err)
	}
	return &claim, nil
}

func getActiveID(txn *badger.Txn, key model.ClaimKey) (string, error) {
	item, err := txn.Get([]byte(activeKey(key)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var id string
	err = item.Value(func(v []byte) error {
		id = string(v)
		return nil
	})
	return id, err
}

func putClaim(txn *badger.Txn, claim *model.Claim) error {
	if err := claim.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("encode claim %s: %w", claim.ID, err)
	}
	return txn.Set([]byte(claimKey(claim.ID)), data)
}

// badgerLogger adapts slog to BadgerDB's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
