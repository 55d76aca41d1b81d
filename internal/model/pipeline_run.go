package model

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

type RunTrigger string

const (
	RunTriggerCLI      RunTrigger = "cli"
	RunTriggerAPI      RunTrigger = "api"
	RunTriggerSchedule RunTrigger = "schedule"
)

type PipelineRun struct {
	ID             int64      `json:"id"`
	Trigger        RunTrigger `json:"trigger"`
	Status         RunStatus  `json:"status"`
	Fetched        int        `json:"fetched"`
	Dropped        int        `json:"dropped"`
	Loaded         int        `json:"loaded"`
	FailedRows     int        `json:"failed_rows"`
	DroppedPercent float64    `json:"dropped_percent"`
	Error          *string    `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
