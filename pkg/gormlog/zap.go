package gormlog

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/utils"

	"github.com/fatflowers/casperflow/pkg/logctx"
)

const defaultSlowThreshold = 500 * time.Millisecond

// Options tunes which statements reach the log.
type Options struct {
	// SlowThreshold marks statements slower than this as slow. Zero uses 500ms.
	SlowThreshold time.Duration
	// LogQueries writes every statement at info.
	LogQueries bool
}

// ZapLogger routes gorm output through the request-scoped zap logger so
// store queries carry the same trace_id as the request that issued them.
type ZapLogger struct {
	base  *zap.SugaredLogger
	level gormlogger.LogLevel
	slow  time.Duration
}

func New(base *zap.SugaredLogger, opts Options) *ZapLogger {
	z := &ZapLogger{base: base, level: gormlogger.Warn, slow: opts.SlowThreshold}
	if opts.LogQueries {
		z.level = gormlogger.Info
	}
	if z.slow <= 0 {
		z.slow = defaultSlowThreshold
	}
	return z
}

func (z *ZapLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *z
	next.level = level
	return &next
}

func (z *ZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	z.printf(ctx, gormlogger.Info, msg, data)
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	z.printf(ctx, gormlogger.Warn, msg, data)
}

func (z *ZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	z.printf(ctx, gormlogger.Error, msg, data)
}

func (z *ZapLogger) printf(ctx context.Context, at gormlogger.LogLevel, msg string, data []interface{}) {
	if z.level < at {
		return
	}
	lg := logctx.FromCtx(ctx, z.base)
	switch at {
	case gormlogger.Error:
		lg.Errorw(msg, "args", data)
	case gormlogger.Warn:
		lg.Warnw(msg, "args", data)
	default:
		lg.Infow(msg, "args", data)
	}
}

// Trace logs failed statements at error and slow ones at warn. A missing
// row is a normal lookup miss for the store and is never an error here.
func (z *ZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := elapsed > z.slow
	if !failed && !slow && z.level < gormlogger.Info {
		return
	}

	query, rows := fc()
	fields := []interface{}{
		"sql", query,
		"rows", rows,
		"elapsed_ms", elapsed.Milliseconds(),
		"caller", trimCaller(utils.FileWithLineNum()),
	}
	lg := logctx.FromCtx(ctx, z.base)
	switch {
	case failed:
		lg.Errorw("store query failed", append(fields, "err", err)...)
	case slow:
		lg.Warnw("store query slow", append(fields, "threshold_ms", z.slow.Milliseconds())...)
	default:
		lg.Infow("store query", fields...)
	}
}

var sourceRoots = []string{"/internal/", "/pkg/", "/cmd/"}

// trimCaller turns an absolute file:line into a module-relative one, e.g.
// /home/ci/casperflow/internal/store/gormstore/plans.go:38 becomes
// internal/store/gormstore/plans.go:38. Paths outside the module keep
// their last three segments.
func trimCaller(s string) string {
	if s == "" {
		return ""
	}
	file, line := s, ""
	if i := strings.LastIndex(s, ":"); i >= 0 {
		file, line = s[:i], s[i:]
	}
	file = strings.ReplaceAll(file, "\\", "/")
	for _, root := range sourceRoots {
		if i := strings.Index(file, root); i >= 0 {
			return file[i+1:] + line
		}
	}
	segs := strings.Split(strings.TrimPrefix(path.Clean(file), "/"), "/")
	if len(segs) > 3 {
		segs = segs[len(segs)-3:]
	}
	return strings.Join(segs, "/") + line
}
