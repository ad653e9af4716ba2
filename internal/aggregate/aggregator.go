// Package aggregate summarizes the operation journal per pool.
package aggregate

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"lrtpool/internal/model"
	"lrtpool/internal/storage"
)

// Aggregator groups journal entries by pool.
type Aggregator struct {
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Add folds records into the per-pool totals.
func (a *Aggregator) Add(records ...model.OperationRecord) {
	for _, record := range records {
		if record.Pool == "" {
			a.logger.Debug("skip record without pool", zap.String("operation", string(record.Operation)))
			continue
		}
		acc, ok := a.accumulators[record.Pool]
		if !ok {
			acc = NewAccumulator(record.Pool)
			a.accumulators[record.Pool] = acc
		}
		acc.AddRecord(record)
	}
}

// Summaries returns one summary per pool ordered by pool address.
func (a *Aggregator) Summaries() []model.PoolSummary {
	pools := make([]string, 0, len(a.accumulators))
	for pool := range a.accumulators {
		pools = append(pools, pool)
	}
	sort.Strings(pools)

	out := make([]model.PoolSummary, 0, len(pools))
	for _, pool := range pools {
		out = append(out, a.accumulators[pool].Summary())
	}
	return out
}

// Run summarizes the JSONL journal at path.
func (a *Aggregator) Run(path string) ([]model.PoolSummary, error) {
	records, err := storage.ReadOperations(path)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	a.Add(records...)
	a.logger.Info("journal summarized",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("pools", len(a.accumulators)),
	)
	return a.Summaries(), nil
}
