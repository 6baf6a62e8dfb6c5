// Package guard keeps model-generated SQL away from anything that could
// change data, and adapts it to the target engine's dialect.
package guard

import (
	"regexp"
	"strings"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/logger"
)

// MutatingKeywords disqualify a query wherever they appear, in any casing,
// including inside identifiers and string literals.
var MutatingKeywords = []string{
	"CREATE", "INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "MERGE", "UPSERT",
}

// RejectedMessage is the user-facing text of an unsafe query error.
const RejectedMessage = "The generated query contains write operations and was not executed."

// Guard is the read-only check applied to every candidate query.
type Guard struct {
	log *logger.Logger
}

// New returns a Guard that reports rejections on log.
func New(log *logger.Logger) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	return &Guard{log: log}
}

// MutatingKeyword returns the first mutating keyword found in sql.
func MutatingKeyword(sql string) (string, bool) {
	upper := strings.ToUpper(sql)
	for _, kw := range MutatingKeywords {
		if strings.Contains(upper, kw) {
			return kw, true
		}
	}
	return "", false
}

// IsReadOnly reports whether sql is free of mutating keywords. A rejection is
// logged at warn level with the offending query.
func (g *Guard) IsReadOnly(sql string) bool {
	kw, found := MutatingKeyword(sql)
	if !found {
		return true
	}
	g.log.WarnWith("Query contains write operations", map[string]interface{}{
		"keyword": kw,
		"query":   sql,
	})
	return false
}

// Check is IsReadOnly as an unsafe_query error.
func (g *Guard) Check(sql string) error {
	if g.IsReadOnly(sql) {
		return nil
	}
	return errs.New(errs.ErrKindUnsafeQuery, RejectedMessage)
}

var ilike = regexp.MustCompile(`(?i)\bilike\b`)

// Normalize rewrites operators the target dialect lacks. SQLite has no ILIKE,
// and its LIKE is already case-insensitive for ASCII. Other dialects pass
// through unchanged.
func Normalize(sql string, dialect database.Dialect) string {
	if dialect != database.DialectSQLite {
		return sql
	}
	return ilike.ReplaceAllString(sql, "LIKE")
}
