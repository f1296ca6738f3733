package storage

import "liquidityEngine/internal/model"

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// Multi fans a batch out to several sinks in order and stops at the first
// failure.
type Multi []Storage

func (m Multi) PutLogBatch(logs []model.LogRecord) error {
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.PutLogBatch(logs); err != nil {
			return err
		}
	}
	return nil
}
