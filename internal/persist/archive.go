package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/piwi3910/CrateFit/internal/task"
)

const taskKeyPrefix = "task/"

// BadgerArchive keeps terminal task snapshots in a badger database,
// one JSON value per task keyed by "task/<id>".
type BadgerArchive struct {
	db *badger.DB
}

// badgerLogger routes badger's internal logging to slog.
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

// OpenArchive opens or creates an archive in dir. A nil logger silences
// badger.
func OpenArchive(dir string, logger *slog.Logger) (*BadgerArchive, error) {
	if dir == "" {
		return nil, errors.New("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
	}
	return openArchive(badger.DefaultOptions(dir).WithSyncWrites(true), logger)
}

// OpenInMemoryArchive returns an archive that lives only as long as the process.
func OpenInMemoryArchive() (*BadgerArchive, error) {
	return openArchive(badger.DefaultOptions("").WithInMemory(true), nil)
}

func openArchive(opts badger.Options, logger *slog.Logger) (*BadgerArchive, error) {
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &BadgerArchive{db: db}, nil
}

func taskKey(id string) []byte {
	return []byte(taskKeyPrefix + id)
}

// Save stores snap, replacing any earlier snapshot of the same task.
func (a *BadgerArchive) Save(ctx context.Context, snap task.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", snap.ID, err)
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(taskKey(snap.ID), data)
	})
}

// Load returns the archived snapshot for id, or task.ErrNotFound.
func (a *BadgerArchive) Load(ctx context.Context, id string) (task.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return task.Snapshot{}, err
	}
	var snap task.Snapshot
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(taskKey(id))
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &snap)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return task.Snapshot{}, task.ErrNotFound
	}
	if err != nil {
		return task.Snapshot{}, fmt.Errorf("load task %s: %w", id, err)
	}
	return snap, nil
}

// List returns every archived snapshot in key order.
func (a *BadgerArchive) List(ctx context.Context) ([]task.Snapshot, error) {
	var snaps []task.Snapshot
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var snap task.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			snaps = append(snaps, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return snaps, nil
}

func (a *BadgerArchive) Close() error {
	return a.db.Close()
}
