package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pitabwire/util"

	"github.com/namwodah/depot/config"
	"github.com/namwodah/depot/data"
)

const (
	tintAttrCodeDuration = 214
	tintAttrCodeRows     = 12
	tintAttrCodeQuery    = 2
)

// StatementLogger records executed statements, flagging slow queries
// past the configured threshold.
type StatementLogger struct {
	baseLogger    *util.LogEntry // Base logger to clone for each query to avoid attribute accumulation
	logQueries    bool
	slowThreshold time.Duration
}

func NewStatementLogger(ctx context.Context, cfg config.ConfigurationDatabaseTracing) *StatementLogger {
	logQueries := false
	slowQueryThreshold := config.DefaultSlowQueryThreshold
	if cfg != nil {
		slowQueryThreshold = cfg.GetDatabaseSlowQueryLogThreshold()
		logQueries = cfg.CanDatabaseTraceQueries()
	}

	return &StatementLogger{
		logQueries:    logQueries,
		slowThreshold: slowQueryThreshold,
		baseLogger:    util.Log(ctx),
	}
}

// Observe logs one executed statement.
func (l *StatementLogger) Observe(ctx context.Context, begin time.Time, sql string, rows int64, err error) {
	if l == nil {
		return
	}

	elapsed := time.Since(begin)
	baseLog := l.baseLogger.WithContext(ctx)

	queryIsSlow := elapsed > l.slowThreshold && l.slowThreshold != 0
	queryErrored := err != nil && !data.ErrorIsNoRows(err)
	shouldLog := queryErrored ||
		baseLog.Enabled(ctx, slog.LevelDebug) ||
		(baseLog.Enabled(ctx, slog.LevelInfo) && l.logQueries) ||
		(baseLog.Enabled(ctx, slog.LevelWarn) && queryIsSlow)

	if !shouldLog {
		return
	}

	rowsAffected := strconv.FormatInt(rows, 10)

	log := baseLog.
		With(
			tint.Attr(tintAttrCodeDuration, slog.Any("duration", elapsed.String())),
			tint.Attr(tintAttrCodeRows, slog.Any("rows", rowsAffected)),
			tint.Attr(tintAttrCodeQuery, slog.Any("query", sql)),
		)
	defer log.Release()

	if queryIsSlow {
		log = log.WithField("SLOW Query", fmt.Sprintf(" >= %v", l.slowThreshold))
	}

	if queryErrored {
		log.WithError(err).Error(" Error running query ")
		return
	}

	if log.Enabled(ctx, slog.LevelDebug) {
		log.Debug("query executed")
		return
	}

	if log.Enabled(ctx, slog.LevelInfo) && l.logQueries {
		log.Info("query executed ")
		return
	}

	if log.Enabled(ctx, slog.LevelWarn) && queryIsSlow {
		log.Warn("query is slow")
	}
}
