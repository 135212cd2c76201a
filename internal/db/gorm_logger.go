package db

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/arencloud/s3audit/internal/logging"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlLogger implements gorm's logger.Interface on top of the structured
// logger. Statements are summarised as operation and table; bound values
// never reach the log.
type sqlLogger struct {
	l     logging.Logger
	level logger.LogLevel
}

func newGormLogger(l logging.Logger, lvl logger.LogLevel) *sqlLogger {
	return &sqlLogger{l: l.With("component", "db"), level: lvl}
}

func (g *sqlLogger) LogMode(l logger.LogLevel) logger.Interface {
	cp := *g
	cp.level = l
	return &cp
}

func (g *sqlLogger) Info(_ context.Context, msg string, data ...any) {
	if g.level >= logger.Info {
		g.l.Info("gorm", "msg", msg, "args", data)
	}
}

func (g *sqlLogger) Warn(_ context.Context, msg string, data ...any) {
	if g.level >= logger.Warn {
		g.l.Warn("gorm", "msg", msg, "args", data)
	}
}

func (g *sqlLogger) Error(_ context.Context, msg string, data ...any) {
	if g.level >= logger.Error {
		g.l.Error("gorm", "msg", msg, "args", data)
	}
}

// Trace logs each statement with duration, rows affected and error.
func (g *sqlLogger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if g.level <= logger.Silent {
		return
	}
	sql, rows := fc()
	op, table := summarizeSQL(sql)
	fields := []any{"op", op, "table", table, "rows", rows, "durationMs", float64(time.Since(begin)) / 1e6, "caller", callerFileLine()}

	switch {
	case err != nil && errors.Is(err, gorm.ErrRecordNotFound):
		if g.level >= logger.Info {
			g.l.Debug("sql", append(fields, "notFound", true)...)
		}
	case err != nil:
		if g.level >= logger.Error {
			g.l.Error("sql", append(fields, "error", err.Error())...)
		}
	case g.level >= logger.Info:
		g.l.Debug("sql", fields...)
	}
}

// callerFileLine returns the first caller outside gorm.
func callerFileLine() string {
	for i := 2; i < 12; i++ {
		if _, file, line, ok := runtime.Caller(i); ok && !strings.Contains(file, "gorm.io") {
			return file + ":" + strconv.Itoa(line)
		}
	}
	return ""
}

// summarizeSQL reduces a statement to e.g. "INSERT", "buckets".
func summarizeSQL(sql string) (op string, table string) {
	q := strings.ToUpper(strings.Join(strings.Fields(sql), " "))
	if q == "" {
		return "", ""
	}
	op, _, _ = strings.Cut(q, " ")

	s := q
	for _, prefix := range []string{"UPDATE ", "INSERT INTO ", "DELETE FROM ", "CREATE TABLE ", "CREATE UNIQUE INDEX ", "CREATE INDEX "} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if s == q {
		if idx := strings.Index(s, " FROM "); idx >= 0 {
			s = s[idx+6:]
		}
	}
	if strings.HasPrefix(op, "CREATE") && strings.Contains(s, " ON ") {
		// index statements: name the table, not the index
		_, s, _ = strings.Cut(s, " ON ")
	}
	if ws := strings.Fields(s); len(ws) > 0 {
		w, _, _ := strings.Cut(ws[0], "(")
		table = strings.Trim(w, "`\"")
	}
	return op, strings.ToLower(table)
}
