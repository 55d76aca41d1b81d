package model

import "fmt"

type FetchKind string

const (
	FetchKindWorklog     FetchKind = "worklog"
	FetchKindIssueDetail FetchKind = "issue"
)

// FetchDescriptor names one supplemental fetch. Grandparent is empty when the
// target is a PrimaryRecord and holds the primary's key when the target is a
// LinkedRecord under it.
type FetchDescriptor struct {
	Kind        FetchKind
	Key         string
	Grandparent string
}

// TopLevelKey returns the key of the PrimaryRecord this fetch belongs to.
// The deletion unit for a failed fetch is always that top-level record.
func (d FetchDescriptor) TopLevelKey() string {
	if d.Grandparent != "" {
		return d.Grandparent
	}
	return d.Key
}

func (d FetchDescriptor) String() string {
	if d.Grandparent != "" {
		return fmt.Sprintf("%s %s (under %s)", d.Kind, d.Key, d.Grandparent)
	}
	return fmt.Sprintf("%s %s", d.Kind, d.Key)
}

// FetchFailure describes a failed supplemental fetch.
type FetchFailure struct {
	URI        string `json:"uri"`
	StatusCode int    `json:"status"` // 0 when no response was received
	Message    string `json:"message"`
}

func (f FetchFailure) String() string {
	return fmt.Sprintf("%s - %d", f.URI, f.StatusCode)
}
