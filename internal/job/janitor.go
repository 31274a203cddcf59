package job

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor sweeps the store every interval until ctx is done, passing expired jobs that are still running to stop.
// Failures are logged, never returned.
func RunJanitor(ctx context.Context, store Store, stop func(Job), interval time.Duration, maxAge time.Duration) {
	log := zap.S().Named("janitor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.SweepExpired(maxAge, stop)
			for _, j := range removed {
				log.Infow("removed expired job", "job_id", j.ID, "kind", j.Kind, "created_at", j.CreatedAt)
			}
			if err != nil {
				log.Warnw("failed to remove some expired files", "error", err)
			}
		}
	}
}
