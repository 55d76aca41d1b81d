package model

// DerivedRecord is a surviving PrimaryRecord after numeric enrichment.
// Its Record copy carries estimates in seconds.
type DerivedRecord struct {
	Record *PrimaryRecord

	FeasibilityTimespent *int64
	// LinkedTimespent is nil when the record has no feasibility links.
	LinkedTimespent *int64
	EstimateTotal   float64

	// Delta and DeltaPercentage are nil unless both EstimateTotal and
	// LinkedTimespent are non-zero.
	Delta           *float64
	DeltaPercentage *float64

	// LinksJSON and WorklogJSON are the nested structures encoded for storage.
	LinksJSON   *string
	WorklogJSON *string
}

func (d *DerivedRecord) Key() string {
	return d.Record.Key
}
