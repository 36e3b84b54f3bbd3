package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects and tunes a Logger backend.
type Options struct {
	Backend string    // slog | zap
	Level   string    // debug | info | warn | error
	Format  string    // text | json
	Output  io.Writer // defaults to os.Stderr
}

// New builds a Logger for the given options.
func New(o Options) (Logger, error) {
	if o.Output == nil {
		o.Output = os.Stderr
	}

	switch strings.ToLower(o.Backend) {
	case "", "slog":
		opts := &slog.HandlerOptions{Level: slogLevel(o.Level), ReplaceAttr: redact}
		var h slog.Handler
		if strings.EqualFold(o.Format, "json") {
			h = slog.NewJSONHandler(o.Output, opts)
		} else {
			h = slog.NewTextHandler(o.Output, opts)
		}
		return NewSlogLogger(slog.New(h)), nil

	case "zap":
		lvl, err := zapcore.ParseLevel(strings.ToLower(o.Level))
		if err != nil {
			lvl = zapcore.InfoLevel
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if strings.EqualFold(o.Format, "json") {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		core := zapcore.NewCore(enc, zapcore.AddSync(o.Output), lvl)
		return NewZapLogger(zap.New(core)), nil

	default:
		return nil, fmt.Errorf("unknown log backend %q", o.Backend)
	}
}

func slogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
