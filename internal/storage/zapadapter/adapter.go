// Package zapadapter bridges pgx logging to zap and carries the request id through context.
package zapadapter

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type key string

var idKey key = "request_id"

// Logger implements pgx.Logger on top of zap
type Logger struct {
	logger *zap.Logger
}

func NewContextWithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey).(string)
	return id, ok
}

// WithRequestID returns logger annotated with the request id held by ctx, if any
func WithRequestID(ctx context.Context, logger *zap.SugaredLogger) *zap.SugaredLogger {
	if id, ok := IDFromContext(ctx); ok {
		return logger.With("request_id", id)
	}
	return logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

// Log drops query arguments so credentials and hashes never reach the log
func (l *Logger) Log(ctx context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	keys := make([]string, 0, len(data))
	for k := range data {
		if k == "args" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zapcore.Field, 0, len(keys)+1)
	if id, ok := IDFromContext(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	for _, k := range keys {
		fields = append(fields, zap.Reflect(k, data[k]))
	}

	switch level {
	case pgx.LogLevelTrace, pgx.LogLevelDebug:
		l.logger.Debug(msg, fields...)
	case pgx.LogLevelInfo:
		l.logger.Debug(msg, fields...)
	case pgx.LogLevelWarn:
		l.logger.Warn(msg, fields...)
	case pgx.LogLevelError:
		l.logger.Error(msg, fields...)
	default:
		l.logger.Error(msg, append(fields, zap.Stringer("PGX_LOG_LEVEL", level))...)
	}
}
