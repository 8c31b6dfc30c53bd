package logging

import (
	"log/slog"
	"os"
)

// New builds the process-wide JSON logger. Service name travels on
// every record so logs from api and worker can be told apart.
func New(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h).With(slog.String("service", service))
}
