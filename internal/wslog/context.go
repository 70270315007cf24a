// Package wslog carries a zerolog.Logger through a context.Context.
package wslog

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

var ctxLoggerKey = ctxKey{}

// defaultLogger is used whenever a context carries none of its own.
var defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InContext returns a copy of ctx carrying l, retrievable with FromContext.
func InContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, l)
}

// FromContext returns the logger carried by ctx, or defaultLogger if none.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxLoggerKey).(zerolog.Logger); ok {
		return l
	}
	return defaultLogger
}

// Fatal logs msg at error level with the call site attached, then exits.
func Fatal(ctx context.Context, msg string, err error) {
	_, file, line, _ := runtime.Caller(1)
	l := FromContext(ctx)
	ev := l.Error().Str("caller", callerLabel(file, line))
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
	os.Exit(1)
}

func callerLabel(file string, line int) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + strconv.Itoa(line)
}
