package recorder

import (
	"context"
	"time"

	"github.com/nmem/nmem/internal/extractor"
	"github.com/nmem/nmem/internal/store"
)

// handleSessionStart upserts the Session row and opportunistically runs a
// retention sweep. Context emission to stdout is the Context Builder's job,
// invoked by the caller after Record returns successfully — keeping this
// package's contract to "persist state" only.
func (r *Recorder) handleSessionStart(ctx context.Context, event extractor.RawHookEvent, project string) error {
	if err := store.UpsertSession(ctx, r.DB, event.SessionID, project, time.Now()); err != nil {
		return err
	}

	if r.Sweep != nil {
		if err := r.Sweep.MaybeSweep(ctx, r.DB); err != nil {
			r.logf("recorder: opportunistic sweep on session start failed: %v", err)
		}
	}
	return nil
}
