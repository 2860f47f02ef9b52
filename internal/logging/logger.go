package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const redacted = "***"

// New creates a process logger with JSON output for backend services.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit sink. Attributes whose key names a
// credential are masked before they are written.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSecrets,
	}))
}

func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString || a.Value.String() == "" {
		return a
	}
	switch key := strings.ToLower(a.Key); {
	case key == "token", key == "authorization", strings.HasSuffix(key, "_token"):
		return slog.String(a.Key, redacted)
	}
	return a
}
