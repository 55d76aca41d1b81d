package pipeline

import (
	"fmt"
	"strings"

	"feasibility.app/etl/internal/model"
)

// SubFetchFailure is a failed supplemental fetch. It is carried as data and
// resolved by the reconciliation gate, never returned as an error on its own.
type SubFetchFailure struct {
	Descriptor model.FetchDescriptor `json:"descriptor"`
	Failure    model.FetchFailure    `json:"failure"`
}

// ThresholdExceededError aborts a run whose dropped ratio reached the threshold.
type ThresholdExceededError struct {
	DroppedPercent   float64
	ThresholdPercent float64
	Failures         []SubFetchFailure
}

func (e *ThresholdExceededError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "excessive supplemental data requests failed: percent failure: %.2f, error threshold: %.2f",
		e.DroppedPercent, e.ThresholdPercent)
	b.WriteString("\nfailed requests:")
	for _, f := range e.Failures {
		b.WriteString("\n")
		b.WriteString(f.Failure.String())
	}
	return b.String()
}

// URIs lists the failing requests as "uri - status" lines.
func (e *ThresholdExceededError) URIs() []string {
	out := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Failure.String())
	}
	return out
}

// RowWriteError is one row that failed to persist. Sibling rows are unaffected.
type RowWriteError struct {
	Key string
	Err error
}

func (e *RowWriteError) Error() string {
	return fmt.Sprintf("writing row %s: %v", e.Key, e.Err)
}

func (e *RowWriteError) Unwrap() error {
	return e.Err
}

// ConnectionError means the persistence session could not be established.
// No row has been written when it is returned.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("persistence connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
