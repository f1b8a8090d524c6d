package watcher

import "context"

// Batch is one notification that the observed region changed.
type Batch struct {
	// Records is the number of underlying change records folded into the batch.
	Records int
}

// Source delivers a Batch per group of changes in the observed region.
// The returned channel is closed when the subscription ends.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Batch, error)
}
