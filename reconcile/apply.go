// Copyright 2026 The Nutzerverwaltungstool Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"fmt"
)

// Actions holds the backend operations for one apply pass. All three
// must be set.
type Actions[D, R any] struct {
	Create func(ctx context.Context, pending Pending[D]) error
	Update func(ctx context.Context, match Match[D, R]) error
	Delete func(ctx context.Context, stale Stale[R]) error
}

// Apply executes the plan: all creates, then all updates, then all
// deletes, one record at a time. The first failing operation aborts
// the pass; completed operations are not rolled back, leaving the
// backend partially converged for the next run to finish.
func (p Plan[D, R]) Apply(ctx context.Context, actions Actions[D, R]) error {
	for _, pending := range p.Creates {
		if err := actions.Create(ctx, pending); err != nil {
			return fmt.Errorf("creating %q: %w", pending.Key, err)
		}
	}
	for _, match := range p.Updates {
		if err := actions.Update(ctx, match); err != nil {
			return fmt.Errorf("updating %q: %w", match.Key, err)
		}
	}
	for _, stale := range p.Deletes {
		if err := actions.Delete(ctx, stale); err != nil {
			return fmt.Errorf("deleting %q: %w", stale.Key, err)
		}
	}
	return nil
}
