package store

import (
	"feasibility.app/etl/core/db"
)

type Stores struct {
	conn db.DBTX
	cfg  FeasibilityConfig
}

func NewStores(conn db.DBTX, cfg FeasibilityConfig) *Stores {
	return &Stores{conn: conn, cfg: cfg}
}

func (s *Stores) Feasibility() FeasibilityStore {
	return newFeasibilityStore(s.conn, s.cfg)
}

func (s *Stores) PipelineRuns() PipelineRunStore {
	return newPipelineRunStore(s.conn)
}
