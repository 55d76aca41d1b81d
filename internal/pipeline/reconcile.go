package pipeline

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/service/issue_tracker"
)

// ReconcileResult summarizes what the gate did to the working set.
type ReconcileResult struct {
	Before         int
	After          int
	DroppedPercent float64
	Dropped        []string
	Failures       []SubFetchFailure
}

// Reconciler merges fetch outcomes into the working set and applies the
// failure-ratio gate.
type Reconciler struct {
	fields           FieldMapping
	thresholdPercent float64
}

func NewReconciler(fields FieldMapping, thresholdPercent float64) *Reconciler {
	return &Reconciler{fields: fields, thresholdPercent: thresholdPercent}
}

// Reconcile merges every successful outcome into set, then deletes each
// primary record that had any failed fetch, taking its linked records with
// it. If the resulting dropped ratio reaches the threshold it returns a
// *ThresholdExceededError and the run must not continue.
//
// Outcomes may arrive in any order; routing uses only the descriptor keys.
func (r *Reconciler) Reconcile(ctx context.Context, set WorkingSet, outcomes []FetchOutcome) (*ReconcileResult, error) {
	result := &ReconcileResult{Before: len(set)}
	doomed := make(map[string]struct{})

	for _, o := range outcomes {
		if o.Failed() {
			result.Failures = append(result.Failures, SubFetchFailure{Descriptor: o.Descriptor, Failure: *o.Failure})
			doomed[o.Descriptor.TopLevelKey()] = struct{}{}
			continue
		}
		r.merge(ctx, set, o)
	}

	for key := range doomed {
		if _, ok := set[key]; ok {
			delete(set, key)
			result.Dropped = append(result.Dropped, key)
		}
	}
	sort.Strings(result.Dropped)

	result.After = len(set)
	result.DroppedPercent = PercentChangeAbs(result.Before, result.After)

	if len(result.Failures) > 0 {
		slog.WarnContext(ctx, "supplemental fetches failed",
			"failures", len(result.Failures),
			"dropped", len(result.Dropped),
			"dropped_percent", result.DroppedPercent,
			"threshold_percent", r.thresholdPercent)

		if result.DroppedPercent >= r.thresholdPercent {
			return result, &ThresholdExceededError{
				DroppedPercent:   result.DroppedPercent,
				ThresholdPercent: r.thresholdPercent,
				Failures:         result.Failures,
			}
		}
	}

	return result, nil
}

func (r *Reconciler) merge(ctx context.Context, set WorkingSet, o FetchOutcome) {
	d := o.Descriptor
	rec, ok := set[d.TopLevelKey()]
	if !ok {
		slog.WarnContext(ctx, "outcome for unknown record ignored", "descriptor", d.String())
		return
	}

	var link *model.LinkedRecord
	if d.Grandparent != "" {
		link = rec.Links[d.Key]
		if link == nil {
			slog.WarnContext(ctx, "outcome for unknown linked record ignored", "descriptor", d.String())
			return
		}
	}

	switch d.Kind {
	case model.FetchKindWorklog:
		agg := ParseWorklog(o.Worklog)
		if link != nil {
			link.Worklog = agg
		} else {
			rec.Worklog = agg
		}
	case model.FetchKindIssueDetail:
		if link == nil {
			slog.WarnContext(ctx, "issue detail without a linked record ignored", "descriptor", d.String())
			return
		}
		r.mergeDetail(ctx, link, o.Detail)
	}
}

// mergeDetail copies the detail fields onto the link stub. A value present in
// the detail overwrites the stub's; an empty one leaves it untouched.
func (r *Reconciler) mergeDetail(ctx context.Context, link *model.LinkedRecord, detail *issue_tracker.Issue) {
	if detail == nil {
		return
	}
	f := detail.Fields

	setString(&link.Summary, f.Summary)
	setString(&link.Status, f.StatusName())
	setString(&link.IssueType, f.IssueTypeName())
	setString(&link.Reviewer, f.UserName(r.fields.Reviewer))
	setString(&link.Reporter, f.ReporterName())
	setString(&link.Project, f.ProjectKey())
	setString(&link.Resolution, f.ResolutionName())

	if t := parseTime(ctx, link.Key, "created", f.Created); t != nil {
		link.Created = t
	}
	if t := parseTime(ctx, link.Key, "resolutiondate", deref(f.ResolutionDate)); t != nil {
		link.ResolutionDate = t
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// ParseWorklog aggregates a worklog page. An empty page yields nil.
func ParseWorklog(page *issue_tracker.WorklogPage) *model.WorklogAggregate {
	if page == nil || len(page.Worklogs) == 0 {
		return nil
	}
	agg := &model.WorklogAggregate{
		Entries: make([]model.WorklogEntry, 0, len(page.Worklogs)),
	}
	for _, w := range page.Worklogs {
		agg.Entries = append(agg.Entries, model.WorklogEntry{
			Author:    w.AuthorName(),
			Timespent: w.TimeSpentSeconds,
			Unit:      model.WorklogUnitSeconds,
			ID:        w.ID,
		})
		agg.Total += w.TimeSpentSeconds
	}
	return agg
}

// PercentChangeAbs returns |new - old| / |old| * 100. An empty starting set
// cannot shrink, so old == 0 yields 0.
func PercentChangeAbs(oldCount, newCount int) float64 {
	if oldCount == 0 {
		return 0
	}
	return math.Abs(float64(newCount-oldCount) / math.Abs(float64(oldCount)) * 100)
}
