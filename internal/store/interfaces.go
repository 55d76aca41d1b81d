package store

import (
	"context"
	"errors"

	"feasibility.app/etl/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// FeasibilityStore writes derived rows into the feasibility table.
type FeasibilityStore interface {
	Ping(ctx context.Context) error
	Insert(ctx context.Context, row *model.DerivedRecord) error
}

// PipelineRunStore defines the contract for the run ledger
type PipelineRunStore interface {
	Create(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error)
	Finish(ctx context.Context, run *model.PipelineRun) error
	GetByID(ctx context.Context, id int64) (*model.PipelineRun, error)
	List(ctx context.Context, limit int32) ([]model.PipelineRun, error)
}
