package pipeline

import (
	"context"
	"strings"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/metrics"
)

// Tester runs candidate queries against the live database. It is the only
// part of a pipeline that touches the database during a turn.
type Tester struct {
	db  database.DB
	log *logger.Logger
}

// NewTester returns a Tester bound to db.
func NewTester(db database.DB, log *logger.Logger) *Tester {
	if log == nil {
		log = logger.Nop()
	}
	return &Tester{db: db, log: log}
}

// TryRun executes query and reports whether it ran. The driver error is
// logged and otherwise dropped: callers only see "not executable".
func (t *Tester) TryRun(ctx context.Context, query string) (*database.Result, bool) {
	if strings.TrimSpace(query) == "" {
		t.log.Warn("empty query is not executable")
		metrics.ObserveExecution(false)
		return nil, false
	}

	result, err := t.db.Run(ctx, query)
	metrics.ObserveExecution(err == nil)
	if err != nil {
		t.log.WarnWith("query is not executable", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return nil, false
	}
	if result.Truncated {
		t.log.Warnf("query result cut to %d rows", result.Len())
	}
	return result, true
}
