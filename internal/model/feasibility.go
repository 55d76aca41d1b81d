package model

import "time"

type EstimateUnit string

const (
	EstimateUnitHours   EstimateUnit = "hours"
	EstimateUnitSeconds EstimateUnit = "seconds"
)

// Estimates holds the six estimate fields of a feasibility review.
// Values arrive in hours and are rewritten to seconds exactly once by the
// transformer; Unit tells which one is currently stored.
type Estimates struct {
	Design         *float64
	Development    *float64
	DevelopmentPad *float64
	PE             *float64
	PM             *float64
	QA             *float64
	Unit           EstimateUnit
}

// Fields returns pointers to the six estimate slots in storage column order.
func (e *Estimates) Fields() []**float64 {
	return []**float64{
		&e.Design,
		&e.Development,
		&e.DevelopmentPad,
		&e.PE,
		&e.PM,
		&e.QA,
	}
}

// PrimaryRecord is one feasibility review returned by the search query.
type PrimaryRecord struct {
	Key            string
	Summary        string
	Reviewer       string
	Reporter       string
	Project        string
	Created        *time.Time
	ResolutionDate *time.Time
	Estimates      Estimates

	// Links is nil when the review has no feasibility links.
	Links   map[string]*LinkedRecord
	Worklog *WorklogAggregate
}

// LinkedRecord is an issue attached to a PrimaryRecord through the
// feasibility link type. It is serialized as-is into the issue_links column.
type LinkedRecord struct {
	Key            string            `json:"key"`
	Summary        string            `json:"summary"`
	Status         string            `json:"status"`
	IssueType      string            `json:"issuetype"`
	Reviewer       string            `json:"reviewer,omitempty"`
	Reporter       string            `json:"reporter,omitempty"`
	Project        string            `json:"project,omitempty"`
	Created        *time.Time        `json:"created,omitempty"`
	Resolution     string            `json:"resolution,omitempty"`
	ResolutionDate *time.Time        `json:"resolution_date,omitempty"`
	Worklog        *WorklogAggregate `json:"worklog,omitempty"`
}

// WorklogAggregate is nil for a record whose worklog list is empty.
type WorklogAggregate struct {
	Entries []WorklogEntry `json:"worklog"`
	Total   int64          `json:"total"`
}

type WorklogEntry struct {
	Author    string `json:"author"`
	Timespent int64  `json:"timespent"`
	Unit      string `json:"unit"`
	ID        string `json:"id"`
}

const WorklogUnitSeconds = "seconds"

// Clone returns a deep copy so derived values never alias the working set.
func (r *PrimaryRecord) Clone() *PrimaryRecord {
	out := *r
	out.Estimates = r.Estimates.clone()
	out.Created = cloneTime(r.Created)
	out.ResolutionDate = cloneTime(r.ResolutionDate)
	out.Worklog = r.Worklog.Clone()
	if r.Links != nil {
		out.Links = make(map[string]*LinkedRecord, len(r.Links))
		for k, l := range r.Links {
			out.Links[k] = l.Clone()
		}
	}
	return &out
}

func (l *LinkedRecord) Clone() *LinkedRecord {
	if l == nil {
		return nil
	}
	out := *l
	out.Created = cloneTime(l.Created)
	out.ResolutionDate = cloneTime(l.ResolutionDate)
	out.Worklog = l.Worklog.Clone()
	return &out
}

func (w *WorklogAggregate) Clone() *WorklogAggregate {
	if w == nil {
		return nil
	}
	out := *w
	out.Entries = append([]WorklogEntry(nil), w.Entries...)
	return &out
}

func (e Estimates) clone() Estimates {
	out := e
	for _, f := range out.Fields() {
		if *f != nil {
			v := **f
			*f = &v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
