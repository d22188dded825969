package logging

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

// Init installs a structured logger writing to w as the slog default and
// returns it. format is "json" (default) or "text".
func Init(level slog.Level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Or returns l, or the slog default when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactURL strips userinfo and masks query parameter values.
func RedactURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed == nil {
		return rawURL
	}

	parsed.User = nil

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			query.Set(key, "***")
		}
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// LogJobSkipped logs a file that passed its hash check.
func LogJobSkipped(l *slog.Logger, path string) {
	Or(l).Debug("file verified, skipping",
		"event", "job_skipped",
		"path", path)
}

// LogJobStart logs the start of a fetch.
func LogJobStart(l *slog.Logger, path, rawURL string) {
	Or(l).Debug("download started",
		"event", "job_start",
		"path", path,
		"url", RedactURL(rawURL))
}

// LogJobComplete logs a finished fetch.
func LogJobComplete(l *slog.Logger, path string, bytes int64, elapsed time.Duration) {
	Or(l).Debug("download complete",
		"event", "job_complete",
		"path", path,
		"bytes", bytes,
		"duration_ms", elapsed.Milliseconds())
}

// LogJobRetry logs a failed attempt that will be repeated.
func LogJobRetry(l *slog.Logger, path, rawURL string, attempt int, err error) {
	Or(l).Warn("download attempt failed, retrying",
		"event", "job_retry",
		"path", path,
		"url", RedactURL(rawURL),
		"attempt", attempt,
		"error", err)
}

// LogJobFailed logs a terminal per-file failure with enough context to
// retry it by hand.
func LogJobFailed(l *slog.Logger, path, rawURL string, err error) {
	Or(l).Error("download failed",
		"event", "job_failed",
		"path", path,
		"url", RedactURL(rawURL),
		"error", err)
}

// LogBatch logs a batch summary.
func LogBatch(l *slog.Logger, total, failed int, elapsed time.Duration) {
	Or(l).Info("batch finished",
		"event", "batch_finished",
		"total", total,
		"failed", failed,
		"duration_ms", elapsed.Milliseconds())
}

// LogPhase logs a session phase change.
func LogPhase(l *slog.Logger, version, phase string, files int) {
	Or(l).Info("session phase",
		"event", "session_phase",
		"version", version,
		"phase", phase,
		"files", files)
}
