package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithThought returns a logger with thought context fields attached.
// Use this for all logging while a thought is being processed.
func WithThought(thoughtID, thoughtType string) *slog.Logger {
	return slog.With(
		"thought_id", thoughtID,
		"thought_type", thoughtType,
	)
}

// WithWorker returns a logger scoped to a scheduler worker.
func WithWorker(worker int) *slog.Logger {
	return slog.With("worker", worker)
}
