package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feasibility.app/etl/internal/model"
	"feasibility.app/etl/internal/service/issue_tracker"
)

// FieldMapping tells the pipeline where the feasibility data lives in the
// tracker's issue fields.
type FieldMapping struct {
	Reviewer string
	// FeasibilityLinkType is the link type id of the "feasibility review"
	// relation. Every other relation type is dropped at ingestion.
	FeasibilityLinkType string
	// Estimates holds the six estimate field ids in storage column order:
	// design, development, development pad, PE, PM, QA.
	Estimates [6]string
}

// WorkingSet is the keyed record graph threaded through the stages.
type WorkingSet map[string]*model.PrimaryRecord

// PrimaryFetcher issues the search query and builds the initial working set.
type PrimaryFetcher struct {
	tracker issue_tracker.IssueTracker
	fields  FieldMapping
}

func NewPrimaryFetcher(tracker issue_tracker.IssueTracker, fields FieldMapping) *PrimaryFetcher {
	return &PrimaryFetcher{tracker: tracker, fields: fields}
}

// Fetch returns the working set and the supplemental fetches it needs.
// A transport or protocol failure of the search aborts the run.
func (f *PrimaryFetcher) Fetch(ctx context.Context, params issue_tracker.SearchParams) (WorkingSet, []model.FetchDescriptor, error) {
	result, err := f.tracker.Search(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("searching feasibility reviews: %w", err)
	}

	set := make(WorkingSet, len(result.Issues))
	var pending []model.FetchDescriptor

	for i := range result.Issues {
		issue := &result.Issues[i]
		if _, dup := set[issue.Key]; dup {
			slog.WarnContext(ctx, "duplicate issue in search result, keeping first", "key", issue.Key)
			continue
		}

		rec := f.primaryRecord(ctx, issue)
		set[rec.Key] = rec

		pending = append(pending, model.FetchDescriptor{
			Kind: model.FetchKindWorklog,
			Key:  rec.Key,
		})

		for _, link := range issue.Fields.IssueLinks {
			if link.Type == nil || link.Type.ID != f.fields.FeasibilityLinkType {
				continue
			}
			target := link.Target()
			if target == nil || target.Key == "" {
				continue
			}
			if rec.Links == nil {
				rec.Links = make(map[string]*model.LinkedRecord)
			}
			rec.Links[target.Key] = &model.LinkedRecord{
				Key:       target.Key,
				Summary:   target.Fields.Summary,
				Status:    target.Fields.StatusName(),
				IssueType: target.Fields.IssueTypeName(),
			}

			pending = append(pending,
				model.FetchDescriptor{Kind: model.FetchKindWorklog, Key: target.Key, Grandparent: rec.Key},
				model.FetchDescriptor{Kind: model.FetchKindIssueDetail, Key: target.Key, Grandparent: rec.Key},
			)
		}
	}

	return set, pending, nil
}

func (f *PrimaryFetcher) primaryRecord(ctx context.Context, issue *issue_tracker.Issue) *model.PrimaryRecord {
	fields := issue.Fields
	rec := &model.PrimaryRecord{
		Key:            issue.Key,
		Summary:        fields.Summary,
		Reviewer:       fields.UserName(f.fields.Reviewer),
		Reporter:       fields.ReporterName(),
		Project:        fields.ProjectKey(),
		Created:        parseTime(ctx, issue.Key, "created", fields.Created),
		ResolutionDate: parseTime(ctx, issue.Key, "resolutiondate", deref(fields.ResolutionDate)),
		Estimates:      model.Estimates{Unit: model.EstimateUnitHours},
	}

	slots := rec.Estimates.Fields()
	for i, fieldID := range f.fields.Estimates {
		if fieldID == "" {
			continue
		}
		v, err := fields.Number(fieldID)
		if err != nil {
			slog.WarnContext(ctx, "unreadable estimate treated as unset", "key", issue.Key, "field", fieldID, "error", err)
			continue
		}
		*slots[i] = v
	}
	return rec
}

func parseTime(ctx context.Context, key, field, value string) *time.Time {
	t, err := issue_tracker.ParseTime(value)
	if err != nil {
		slog.WarnContext(ctx, "unreadable timestamp treated as unset", "key", key, "field", field, "error", err)
		return nil
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
