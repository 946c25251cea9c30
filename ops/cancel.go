package ops

import (
	"context"
	"fmt"
)

// ErrCancelled reports that the caller's context was cancelled mid-operation;
// a partially-written container is left as-is and the caller is expected
// to retry or repair.
var ErrCancelled = fmt.Errorf("ops: operation cancelled")

// checkCancelled is polled at the top of every pipeline iteration so a
// long-running operation can stop between blocks rather than mid-write.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}
