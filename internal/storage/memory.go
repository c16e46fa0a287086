package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"aeminvert/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type chainKey struct {
	run   string
	chain int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	models      map[chainKey]model.ModelRecord
	history     map[chainKey][]model.HistoryBlockRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.models = make(map[chainKey]model.ModelRecord)
	s.history = make(map[chainKey][]model.HistoryBlockRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.Chains = slices.Clone(run.Chains)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.Chains = slices.Clone(run.Chains)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveModel(_ context.Context, record model.ModelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	record.Tree = slices.Clone(record.Tree)
	s.models[chainKey{record.RunID, record.Chain}] = record
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, runID string, chain int) (model.ModelRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.models[chainKey{runID, chain}]
	if !ok {
		return model.ModelRecord{}, false, nil
	}
	record.Tree = slices.Clone(record.Tree)
	return record, true, nil
}

func (s *MemoryStore) AppendHistoryBlock(_ context.Context, block model.HistoryBlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	block.Data = slices.Clone(block.Data)
	key := chainKey{block.RunID, block.Chain}
	s.history[key] = append(s.history[key], block)
	return nil
}

func (s *MemoryStore) GetHistoryBlocks(_ context.Context, runID string, chain int) ([]model.HistoryBlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks := slices.Clone(s.history[chainKey{runID, chain}])
	slices.SortFunc(blocks, func(a, b model.HistoryBlockRecord) int { return a.Sequence - b.Sequence })
	return blocks, nil
}

// sortRuns orders newest first, then by id.
func sortRuns(runs []model.RunRecord) {
	slices.SortFunc(runs, func(a, b model.RunRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
