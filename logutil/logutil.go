package logutil

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/cpfiffer/outlines/envconfig"
)

// NewLogger returns a text logger writing to w, at debug level when
// OUTLINES_DEBUG is set. Source locations are trimmed to the file
// base name.
func NewLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if envconfig.Debug() {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}
