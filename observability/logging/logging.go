package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Options tune Setup. The zero value writes INFO and above to stdout.
type Options struct {
	Writer io.Writer
	Level  slog.Level
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger. Every line carries the service name and, when set,
// the environment. The dev environment logs at DEBUG.
func Setup(service, env string) *slog.Logger {
	opts := Options{Level: slog.LevelInfo}
	if strings.EqualFold(strings.TrimSpace(env), "dev") {
		opts.Level = slog.LevelDebug
	}
	return SetupWithOptions(service, env, opts)
}

// SetupWithOptions is Setup with an explicit writer and level.
func SetupWithOptions(service, env string, opts Options) *slog.Logger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	base := slog.New(handler.WithAttrs(attrs))
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
