package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"feasibility.app/etl/core/db"
	"feasibility.app/etl/internal/model"
)

// FeasibilityColumns is the column order of the feasibility table.
var FeasibilityColumns = []string{
	"key",
	"summary",
	"reviewer_name",
	"reporter_name",
	"project_name",
	"created",
	"resolution_date",
	"design_estimate",
	"development_estimate",
	"development_pad_estimate",
	"pe_estimate",
	"pm_estimate",
	"qa_estimate",
	"issue_links",
	"worklog",
	"feasibility_timespent",
	"issue_links_timespent",
	"feasibility_estimate_total",
	"delta",
	"delta_percentage",
}

type FeasibilityConfig struct {
	// Table may be schema-qualified ("reporting.v_feasibility").
	Table  string
	Upsert bool
}

type feasibilityStore struct {
	conn db.DBTX
	sql  string
}

func newFeasibilityStore(conn db.DBTX, cfg FeasibilityConfig) FeasibilityStore {
	return &feasibilityStore{conn: conn, sql: InsertSQL(cfg)}
}

// InsertSQL builds the parameterized row statement for cfg.
func InsertSQL(cfg FeasibilityConfig) string {
	table := pgx.Identifier(strings.Split(cfg.Table, ".")).Sanitize()

	cols := make([]string, len(FeasibilityColumns))
	params := make([]string, len(FeasibilityColumns))
	for i, c := range FeasibilityColumns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(params, ", "))

	if cfg.Upsert {
		updates := make([]string, 0, len(cols)-1)
		for _, c := range cols[1:] {
			updates = append(updates, c+" = EXCLUDED."+c)
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s", cols[0], strings.Join(updates, ", "))
	}
	return b.String()
}

func (s *feasibilityStore) Ping(ctx context.Context) error {
	var one int
	return s.conn.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (s *feasibilityStore) Insert(ctx context.Context, row *model.DerivedRecord) error {
	_, err := s.conn.Exec(ctx, s.sql, InsertArgs(row)...)
	return err
}

// InsertArgs returns the statement arguments for row in column order.
func InsertArgs(row *model.DerivedRecord) []any {
	r := row.Record
	e := r.Estimates

	return []any{
		r.Key,
		r.Summary,
		nullString(r.Reviewer),
		nullString(r.Reporter),
		nullString(r.Project),
		r.Created,
		r.ResolutionDate,
		e.Design,
		e.Development,
		e.DevelopmentPad,
		e.PE,
		e.PM,
		e.QA,
		row.LinksJSON,
		row.WorklogJSON,
		row.FeasibilityTimespent,
		row.LinkedTimespent,
		row.EstimateTotal,
		row.Delta,
		row.DeltaPercentage,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
