package monitoring

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger provides enhanced structured logging with context
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to w, or stdout when w is nil.
func NewLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(requestID, method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"request_id", requestID,
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// DiagnosisLogger logs a stored submission.
func (l *Logger) DiagnosisLogger(diagnosisID int64, ownerID, tier string, weaknesses int, duration time.Duration) {
	l.Info("Diagnosis Stored",
		"diagnosis_id", diagnosisID,
		"owner_id", ownerID,
		"tier", tier,
		"key_drivers", weaknesses,
		"duration_ms", duration.Milliseconds(),
	)
}

// ReportLogger logs an assembled report.
func (l *Logger) ReportLogger(diagnosisID int64, ownerID string, weaknesses, strengths int, duration time.Duration) {
	l.Info("Report Built",
		"diagnosis_id", diagnosisID,
		"owner_id", ownerID,
		"weaknesses", weaknesses,
		"strengths", strengths,
		"duration_ms", duration.Milliseconds(),
	)
}

// ArtifactLogger logs the outcome of loading the model artifacts.
func (l *Logger) ArtifactLogger(source, version string, err error, duration time.Duration) {
	if err != nil {
		l.Error("Artifact Load Failed",
			"source", source,
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	l.Info("Artifacts Loaded",
		"source", source,
		"version", version,
		"duration_ms", duration.Milliseconds(),
	)
}

// RetentionLogger logs one retention sweep.
func (l *Logger) RetentionLogger(removed int64, err error, duration time.Duration) {
	if err != nil {
		l.Warn("Retention Sweep Incomplete",
			"removed", removed,
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	l.Info("Retention Sweep",
		"removed", removed,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, requestID, method, path string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"request_id", requestID,
		"method", method,
		"path", path,
		"status_code", statusCode,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).Round(time.Second).String(),
	)
}

var startTime = time.Now()
