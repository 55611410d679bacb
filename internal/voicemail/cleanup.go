package voicemail

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/database"
)

// Purge hard-deletes messages that have sat in the deleted state longer than
// retention and removes audio no remaining message points at. It returns the
// number of purged rows.
func Purge(ctx context.Context, repo database.VoicemailRepository, store blob.Blob, retention time.Duration, now time.Time, logger *slog.Logger) (int, error) {
	msgs, err := repo.PurgeDeleted(ctx, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool)
	for _, m := range msgs {
		if m.Filename == "" || seen[m.Filename] {
			continue
		}
		seen[m.Filename] = true
		shared, err := repo.FileReferenced(ctx, m.Filename)
		if err != nil {
			logger.Warn("checking voicemail file references", "file", m.Filename, "error", err)
			continue
		}
		if shared {
			continue
		}
		if err := store.Delete(ctx, m.Filename); err != nil && !errors.Is(err, blob.ErrNotExist) {
			logger.Warn("failed to remove voicemail file", "file", m.Filename, "error", err)
		}
	}
	return len(msgs), nil
}

// StartPurgeTicker runs Purge every interval until ctx is cancelled. A zero
// retention disables purging.
func StartPurgeTicker(ctx context.Context, repo database.VoicemailRepository, store blob.Blob, retention, interval time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	logger = logger.With("component", "voicemail_purge")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := Purge(ctx, repo, store, retention, now, logger)
				if err != nil {
					logger.Error("voicemail purge failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("voicemail purge", "deleted", n)
				}
			}
		}
	}()
}
