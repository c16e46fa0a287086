package storage

import (
	"context"

	"aeminvert/internal/model"
)

// Store persists inversion runs, their final models and chain-history
// blocks.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveModel(ctx context.Context, record model.ModelRecord) error
	GetModel(ctx context.Context, runID string, chain int) (model.ModelRecord, bool, error)
	AppendHistoryBlock(ctx context.Context, block model.HistoryBlockRecord) error
	GetHistoryBlocks(ctx context.Context, runID string, chain int) ([]model.HistoryBlockRecord, error)
}
