package guard

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/logger"
)

func TestIsReadOnly(t *testing.T) {
	g := New(nil)

	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM tracks", true},
		{"SELECT COUNT(*) FROM tracks WHERE Name LIKE '%love%'", true},
		{"DROP TABLE tracks", false},
		{"insert into x values (1)", false},
		{"Update tracks SET Name = 'x'", false},
		{"delete from tracks", false},
		{"CREATE TABLE t (id int)", false},
		{"alter table t add column c int", false},
		{"truncate tracks", false},
		{"merge into t using s on (t.id = s.id)", false},
		{"upsert into t values (1)", false},
		// keyword substrings disqualify, even inside identifiers
		{"SELECT created_at FROM invoices", false},
		{"SELECT * FROM t WHERE note = 'please update me'", false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, g.IsReadOnly(tt.sql))
		})
	}
}

func TestIsReadOnly_LogsWarning(t *testing.T) {
	buf := &bytes.Buffer{}
	g := New(logger.New(&logger.Config{Level: "info", Format: "json", Output: buf}))

	assert.False(t, g.IsReadOnly("drop table tracks"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "drop table tracks", entry["query"])
	assert.Equal(t, "DROP", entry["keyword"])
}

func TestCheck(t *testing.T) {
	g := New(nil)
	require.NoError(t, g.Check("SELECT 1"))

	err := g.Check("DELETE FROM tracks")
	require.Error(t, err)
	assert.True(t, errs.IsUnsafeQuery(err))
	assert.Equal(t, RejectedMessage, errs.UserMessage(err))
}

func TestNormalize(t *testing.T) {
	in := "SELECT * FROM t WHERE name ILIKE '%a%'"

	assert.Equal(t, "SELECT * FROM t WHERE name LIKE '%a%'", Normalize(in, database.DialectSQLite))
	assert.Equal(t, in, Normalize(in, database.DialectPostgres))
	assert.Equal(t, in, Normalize(in, database.DialectMySQL))

	assert.Equal(t, "SELECT * FROM t WHERE a LIKE 'x' AND b LIKE 'y'",
		Normalize("SELECT * FROM t WHERE a ilike 'x' AND b iLike 'y'", database.DialectSQLite))
	assert.Equal(t, "SELECT COUNT(*) FROM tracks", Normalize("SELECT COUNT(*) FROM tracks", database.DialectSQLite))
}

func TestCleanSQL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", " SELECT COUNT(*) FROM tracks;\n", "SELECT COUNT(*) FROM tracks;"},
		{"fenced", "Here you go:\n```sql\nSELECT 1\n```\nthanks", "SELECT 1"},
		{"unterminated fence", "```sql\nSELECT 1", "SELECT 1"},
		{"echoed result", "SELECT COUNT(*) FROM tracks\nSQLResult: [(3503,)]\nAnswer: 3503", "SELECT COUNT(*) FROM tracks"},
		{"sql tags", "[SQL] SELECT 1 [/SQL]", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSQL(tt.raw))
		})
	}
}
