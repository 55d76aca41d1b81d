package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"

	"feasibility.app/etl/internal/model"
)

const secondsPerHour = 3600

// Transform derives one record per surviving primary record, sorted by key.
// The working set itself is not modified.
func Transform(set WorkingSet) ([]*model.DerivedRecord, error) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*model.DerivedRecord, 0, len(keys))
	for _, k := range keys {
		d, err := Derive(set[k])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Derive computes the derived metrics for one record. The steps run in a
// fixed order: linked timespent, then estimate conversion (which rewrites the
// estimate fields to seconds), then delta, which reads the converted total.
func Derive(rec *model.PrimaryRecord) (*model.DerivedRecord, error) {
	cp := rec.Clone()
	d := &model.DerivedRecord{Record: cp}

	if cp.Worklog != nil {
		total := cp.Worklog.Total
		d.FeasibilityTimespent = &total
	}

	d.LinkedTimespent = linkedTimespent(cp.Links)
	d.EstimateTotal = convertEstimates(&cp.Estimates)
	d.Delta, d.DeltaPercentage = delta(d.EstimateTotal, d.LinkedTimespent)

	if cp.Links != nil {
		b, err := json.Marshal(cp.Links)
		if err != nil {
			return nil, fmt.Errorf("encoding links of %s: %w", cp.Key, err)
		}
		s := string(b)
		d.LinksJSON = &s
	}
	if cp.Worklog != nil {
		b, err := json.Marshal(cp.Worklog)
		if err != nil {
			return nil, fmt.Errorf("encoding worklog of %s: %w", cp.Key, err)
		}
		s := string(b)
		d.WorklogJSON = &s
	}

	return d, nil
}

// linkedTimespent sums the worklog totals of the linked records. Links
// without a worklog contribute 0; a record without links yields nil.
func linkedTimespent(links map[string]*model.LinkedRecord) *int64 {
	if links == nil {
		return nil
	}
	var total int64
	for _, l := range links {
		if l.Worklog != nil {
			total += l.Worklog.Total
		}
	}
	return &total
}

// convertEstimates rewrites every estimate field from hours to seconds, with
// unset fields stored as 0, and returns the total. Estimates already in
// seconds are only summed.
func convertEstimates(e *model.Estimates) float64 {
	var total float64
	if e.Unit == model.EstimateUnitSeconds {
		for _, f := range e.Fields() {
			if *f != nil {
				total += **f
			}
		}
		return total
	}

	for _, f := range e.Fields() {
		var hours float64
		if *f != nil {
			hours = **f
		}
		seconds := hours * secondsPerHour
		*f = &seconds
		total += seconds
	}
	e.Unit = model.EstimateUnitSeconds
	return total
}

// delta returns nil, nil unless both the estimate and the linked timespent
// are non-zero. The two values are always set together.
func delta(estimate float64, linked *int64) (*float64, *float64) {
	if estimate == 0 || linked == nil || *linked == 0 {
		return nil, nil
	}
	actual := float64(*linked)

	// Only reachable with a negative estimate.
	mean := (estimate + actual) / 2
	if mean == 0 {
		return nil, nil
	}
	d := estimate - actual
	pct := d / mean * 100
	return &d, &pct
}
