// Package logger wraps zerolog with context-carried fields so request,
// operator and parcel identifiers follow a call chain into every entry.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/parcel-intake-backend/pkg/env"
)

// Options configures New. Format is "json" or "console"; when empty it is
// read from INTAKE_LOG_FORMAT.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Format      string
	Output      io.Writer
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type fieldsKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = env.First("json", "INTAKE_LOG_FORMAT", "LOG_FORMAT")
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	root := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(fieldsKey{}).(zerolog.Logger); ok {
			return scoped
		}
	}
	return l.root
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return context.WithValue(ctx, fieldsKey{}, l.from(ctx).With().Interface(key, value).Logger())
}

// WithFields attaches fields in key order so entries are stable.
func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b := l.from(ctx).With()
	for _, k := range keys {
		b = b.Interface(k, fields[k])
	}
	return context.WithValue(ctx, fieldsKey{}, b.Logger())
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "request_id", id)
}

func (l *Logger) WithOperatorID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "operator_id", id)
}

func (l *Logger) WithTrackingNumber(ctx context.Context, tn string) context.Context {
	return l.WithField(ctx, "tracking_number", tn)
}

func (l *Logger) WithManifestNumber(ctx context.Context, number string) context.Context {
	return l.WithField(ctx, "manifest_number", number)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	lg := l.from(ctx)
	lg.Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	lg := l.from(ctx)
	lg.Info().Msg(msg)
}

// Warn logs at warn level, with a stack when the logger was built with
// WarnStack.
func (l *Logger) Warn(ctx context.Context, msg string) {
	lg := l.from(ctx)
	ev := lg.Warn()
	if l.warnStack {
		ev = ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error always carries a stack.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	lg := l.from(ctx)
	ev := lg.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
