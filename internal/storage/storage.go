package storage

import "lrtpool/internal/model"

// Journal is a sink for operation records.
type Journal interface {
	PutOperationBatch(records []model.OperationRecord) error
}

// Discard drops every record.
type Discard struct{}

func (Discard) PutOperationBatch([]model.OperationRecord) error { return nil }
