package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	// Format is "json" (default) or "console".
	Format      string
	Output      io.Writer
}

// Logger writes zerolog entries enriched with the fields bound to a request
// context (request_id, user_id, company_id and whatever handlers add).
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(opts.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	base := zerolog.New(out).
		Level(opts.Level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{base: base, warnStack: opts.WarnStack}
}

// ParseLevel maps a config string to a level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

var nop = zerolog.Nop()

// from returns the context-bound logger, falling back to the base one.
// zerolog.Ctx hands back a disabled logger when nothing is attached.
// A nil *Logger logs nothing.
func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if l == nil {
		return &nop
	}
	if ctx != nil {
		if bound := zerolog.Ctx(ctx); bound.GetLevel() != zerolog.Disabled {
			return bound
		}
	}
	return &l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.from(ctx).With().Interface(key, value).Logger().WithContext(ctx)
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.from(ctx).With().Fields(fields).Logger().WithContext(ctx)
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.WithField(ctx, "user_id", userID)
}

// WithCompanyID tags every subsequent entry with the resolved tenant.
func (l *Logger) WithCompanyID(ctx context.Context, companyID string) context.Context {
	return l.WithField(ctx, "company_id", companyID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	l.emit(l.from(ctx).Warn(), nil, l.stackOnWarn(), msg)
}

// WarnErr records a recoverable failure without the stack trace Error attaches.
func (l *Logger) WarnErr(ctx context.Context, msg string, err error) {
	l.emit(l.from(ctx).Warn(), err, l.stackOnWarn(), msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.emit(l.from(ctx).Error(), err, true, msg)
}

func (l *Logger) emit(event *zerolog.Event, err error, withStack bool, msg string) {
	if event == nil {
		return
	}
	if err != nil {
		event = event.Err(err)
	}
	if withStack {
		event = event.Str("stack", strings.TrimSpace(string(debug.Stack())))
	}
	event.Msg(msg)
}

func (l *Logger) stackOnWarn() bool {
	return l != nil && l.warnStack
}
