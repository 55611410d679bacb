// Package logging builds the process-wide slog handler, optionally fanning
// error records out to Sentry.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"

	"github.com/flowpbx/switchyard/internal/config"
)

// Options controls logger construction.
type Options struct {
	Release    string
	ServerName string
}

// Setup builds the root logger from cfg and installs it as the slog default.
// The returned flush function must be called before the process exits.
func Setup(cfg *config.Config, w io.Writer, opts Options) (*slog.Logger, func(), error) {
	handler := cfg.SlogHandler(w)
	flush := func() {}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			ServerName:       opts.ServerName,
			Release:          opts.Release,
			AttachStacktrace: true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initialising sentry: %w", err)
		}
		handler = slogmulti.Fanout(
			handler,
			slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
		)
		flush = func() { sentry.Flush(2 * time.Second) }
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, flush, nil
}
