package issue_tracker

import (
	"context"
	"time"
)

type SearchParams struct {
	JQL        string
	MaxResults int // 0 leaves the server default
}

// IssueTracker is the remote tracking API the pipeline reads from.
type IssueTracker interface {
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)
	Issue(ctx context.Context, key string) (*Issue, error)
	Worklog(ctx context.Context, key string) (*WorklogPage, error)
}

// Recorder receives one entry per HTTP call. *logger.Transcript implements it.
type Recorder interface {
	Network(ctx context.Context, method, uri string, status int, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) Network(context.Context, string, string, int, time.Duration, error) {}
