package httpapi

import "go.uber.org/zap"

// Options controls HTTP API runtime behavior.
type Options struct {
	Logger *zap.Logger

	// BatchConcurrency bounds the upstream lookups in flight for one
	// POST /parameters/batch request.
	BatchConcurrency int

	// MaxBatchSize is the largest accepted device_ids list.
	MaxBatchSize int

	// MaxBodyBytes caps request bodies (tasks, batch).
	MaxBodyBytes int64
}

func (o Options) withDefaults() Options {
	if o.BatchConcurrency <= 0 {
		o.BatchConcurrency = 4
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 100
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	return o
}
