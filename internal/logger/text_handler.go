package logger

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// newTextHandler returns the console handler. Records carry no timestamp,
// TRACE gets its own level name and time values are rendered in tz.
func newTextHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				lvl, ok := a.Value.Any().(slog.Level)
				if !ok {
					return a
				}
				return slog.String(slog.LevelKey, levelName(lvl))
			}
			if a.Value.Kind() == slog.KindTime {
				return slog.String(a.Key, a.Value.Time().In(tz).Format(time.RFC3339))
			}
			return a
		},
	})
}

func levelName(lvl slog.Level) string {
	if lvl <= traceLevelValue {
		return "TRACE"
	}
	return strings.ToUpper(lvl.String())
}
