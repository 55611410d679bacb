package recording

import (
	"context"
	"log/slog"
	"time"
)

// StartCleanupTicker runs a background goroutine that periodically removes
// conference flags older than maxAge, so a room whose recording stopped can
// be armed again by the next conference. The goroutine stops when ctx is
// cancelled.
func StartCleanupTicker(ctx context.Context, flags *Flags, maxAge, interval time.Duration, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := flags.Expire(maxAge, now)
				if err != nil {
					logger.Error("recording flag cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("recording flag cleanup", "removed", n, "max_age", maxAge)
				}
			}
		}
	}()
}
