package history

import "context"

// Recorder persists finished matches. Implementations must be idempotent by
// match id.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}
