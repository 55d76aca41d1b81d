package dto

import (
	"time"

	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/pipeline"
)

type CreateRunRequest struct {
	// Wait blocks the request until the run has finished.
	Wait bool `json:"wait"`
}

type RunResponse struct {
	ID             int64      `json:"id,string"`
	Trigger        string     `json:"trigger"`
	Status         string     `json:"status"`
	Fetched        int        `json:"fetched"`
	Dropped        int        `json:"dropped"`
	Loaded         int        `json:"loaded"`
	FailedRows     int        `json:"failed_rows"`
	DroppedPercent float64    `json:"dropped_percent"`
	Error          *string    `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	FailedRequests []string   `json:"failed_requests,omitempty"`
}

type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

func ToRunResponse(run *model.PipelineRun) *RunResponse {
	return &RunResponse{
		ID:             run.ID,
		Trigger:        string(run.Trigger),
		Status:         string(run.Status),
		Fetched:        run.Fetched,
		Dropped:        run.Dropped,
		Loaded:         run.Loaded,
		FailedRows:     run.FailedRows,
		DroppedPercent: run.DroppedPercent,
		Error:          run.Error,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
	}
}

// WithReport adds the failing supplemental requests of a finished run.
func (r *RunResponse) WithReport(report *pipeline.Report) *RunResponse {
	if report == nil {
		return r
	}
	for _, f := range report.Failures {
		r.FailedRequests = append(r.FailedRequests, f.Failure.String())
	}
	return r
}
