package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"aeminvert/internal/model"
)

// BadgerConfig selects where a BadgerStore keeps its files.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's internal messages; nil silences them.
	Logger *slog.Logger
}

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
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps records as JSON values under prefixed keys.
type BadgerStore struct {
	cfg BadgerConfig

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(cfg BadgerConfig) *BadgerStore {
	return &BadgerStore{cfg: cfg}
}

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}
	if !s.cfg.InMemory && s.cfg.Path == "" {
		return errors.New("badger path is required")
	}

	var opts badger.Options
	if s.cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.cfg.Path, 0o750); err != nil {
			return fmt.Errorf("create database directory %s: %w", s.cfg.Path, err)
		}
		opts = badger.DefaultOptions(s.cfg.Path)
	}
	opts = opts.WithSyncWrites(s.cfg.SyncWrites).WithNumVersionsToKeep(1)
	if s.cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: s.cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) getDB() (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func runKey(id string) []byte {
	return []byte("run/" + id)
}

func modelKey(runID string, chain int) []byte {
	return fmt.Appendf(nil, "model/%s/%06d", runID, chain)
}

func historyPrefix(runID string, chain int) []byte {
	return fmt.Appendf(nil, "history/%s/%06d/", runID, chain)
}

func (s *BadgerStore) put(key, value []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) get(key []byte) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}
	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *BadgerStore) scan(prefix []byte, fn func(value []byte) error) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) SaveRun(_ context.Context, run model.RunRecord) error {
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	return s.put(runKey(run.ID), payload)
}

func (s *BadgerStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	payload, ok, err := s.get(runKey(id))
	if err != nil || !ok {
		return model.RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *BadgerStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	var runs []model.RunRecord
	err := s.scan([]byte("run/"), func(value []byte) error {
		run, err := DecodeRun(value)
		if err != nil {
			return err
		}
		runs = append(runs, run)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (s *BadgerStore) SaveModel(_ context.Context, record model.ModelRecord) error {
	payload, err := EncodeModel(record)
	if err != nil {
		return err
	}
	return s.put(modelKey(record.RunID, record.Chain), payload)
}

func (s *BadgerStore) GetModel(_ context.Context, runID string, chain int) (model.ModelRecord, bool, error) {
	payload, ok, err := s.get(modelKey(runID, chain))
	if err != nil || !ok {
		return model.ModelRecord{}, false, err
	}
	record, err := DecodeModel(payload)
	if err != nil {
		return model.ModelRecord{}, false, fmt.Errorf("decode model %s/%d: %w", runID, chain, err)
	}
	return record, true, nil
}

func (s *BadgerStore) AppendHistoryBlock(_ context.Context, block model.HistoryBlockRecord) error {
	payload, err := EncodeHistoryBlock(block)
	if err != nil {
		return err
	}
	key := fmt.Appendf(historyPrefix(block.RunID, block.Chain), "%09d", block.Sequence)
	return s.put(key, payload)
}

// GetHistoryBlocks returns blocks in sequence order; the zero-padded key
// suffix makes the key order match.
func (s *BadgerStore) GetHistoryBlocks(_ context.Context, runID string, chain int) ([]model.HistoryBlockRecord, error) {
	var blocks []model.HistoryBlockRecord
	err := s.scan(historyPrefix(runID, chain), func(value []byte) error {
		block, err := DecodeHistoryBlock(value)
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
		return nil
	})
	return blocks, err
}
