package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"feasibility.app/etl/internal/model"
)

// InsertStatement names row writes in the transcript.
const InsertStatement = "feasibility_insert"

// RowSink persists derived rows.
type RowSink interface {
	Ping(ctx context.Context) error
	Insert(ctx context.Context, row *model.DerivedRecord) error
}

// WriteRecorder receives one entry per attempted row write.
type WriteRecorder interface {
	Write(ctx context.Context, statement, key string, err error)
}

type LoadResult struct {
	Attempted int
	Written   int
	Failures  []*RowWriteError
}

type Loader struct {
	sink     RowSink
	recorder WriteRecorder
}

func NewLoader(sink RowSink, recorder WriteRecorder) *Loader {
	return &Loader{sink: sink, recorder: recorder}
}

// Load checks the connection once, then writes every row concurrently. A
// failing row is recorded and does not affect its siblings; the only error
// Load returns is a *ConnectionError, before any row is attempted.
func (l *Loader) Load(ctx context.Context, rows []*model.DerivedRecord) (*LoadResult, error) {
	if err := l.sink.Ping(ctx); err != nil {
		return nil, &ConnectionError{Err: err}
	}

	errs := make([]error, len(rows))

	var g errgroup.Group
	for i, row := range rows {
		g.Go(func() error {
			err := l.sink.Insert(ctx, row)
			if l.recorder != nil {
				l.recorder.Write(ctx, InsertStatement, row.Key(), err)
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	result := &LoadResult{Attempted: len(rows)}
	for i, err := range errs {
		if err == nil {
			result.Written++
			continue
		}
		rwErr := &RowWriteError{Key: rows[i].Key(), Err: err}
		result.Failures = append(result.Failures, rwErr)
		slog.ErrorContext(ctx, "row write failed", "key", rwErr.Key, "error", err)
	}
	return result, nil
}
