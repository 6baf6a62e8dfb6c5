package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/llm"
)

// tableInfoErrDB fails introspection.
type tableInfoErrDB struct{ fakeDB }

func (d *tableInfoErrDB) TableInfo(context.Context) (string, error) {
	return "", errors.New("no such table: sqlite_master")
}

func TestSetup_Errors(t *testing.T) {
	m := newModelServer(t, "unused", "SELECT 1")

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(error) bool
		msg    string
	}{
		{
			name:   "prompt missing placeholder",
			mutate: func(c *Config) { c.Prompts.SQL = "Question: {input}\nSchema: {table_info}" },
			check:  errs.IsConfiguration,
			msg:    "Missing key {history} in prompt template of SQL Assistant",
		},
		{
			name:   "response prompt missing placeholders",
			mutate: func(c *Config) { c.Prompts.Response = "{history} {question}" },
			check:  errs.IsConfiguration,
			msg:    "Missing key {query}, {results} in prompt template of AI Assistant",
		},
		{
			name:   "model id missing",
			mutate: func(c *Config) { c.SQLModel.Model = "" },
			check:  errs.IsEndpointConfig,
			msg:    llm.ConfigErrorMessage,
		},
		{
			name:   "response base url invalid",
			mutate: func(c *Config) { c.ResponseModel.BaseURL = "localhost:8080" },
			check:  errs.IsEndpointConfig,
			msg:    llm.ConfigErrorMessage,
		},
		{
			name:   "negative bound",
			mutate: func(c *Config) { c.MaxRegenerations = -1 },
			check:  errs.IsConfiguration,
		},
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "hybrid" },
			check:  errs.IsConfiguration,
		},
		{
			name:   "schema mode without schema",
			mutate: func(c *Config) { c.Mode = ModeSchema },
			check:  errs.IsConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(m, ModeStandard)
			tt.mutate(&cfg)

			opened := false
			_, err := Setup(context.Background(), cfg, Options{
				OpenDB: func(context.Context) (database.DB, error) {
					opened = true
					return &fakeDB{dialect: database.DialectSQLite}, nil
				},
			})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected kind %s", errs.KindOf(err))
			if tt.msg != "" {
				assert.Equal(t, tt.msg, errs.UserMessage(err))
			}
			assert.False(t, opened)
			assert.Empty(t, m.promptsFor(sqlModel))
		})
	}
}

func TestSetup_DatabaseErrors(t *testing.T) {
	m := newModelServer(t, "unused", "SELECT 1")
	cfg := testConfig(m, ModeStandard)

	t.Run("open fails", func(t *testing.T) {
		want := errs.New(errs.ErrKindConnectionFailed, "Database could not be found. Please ensure database details are correct.")
		_, err := Setup(context.Background(), cfg, Options{
			OpenDB: func(context.Context) (database.DB, error) { return nil, want },
		})
		assert.Same(t, want, err)
	})

	t.Run("no opener", func(t *testing.T) {
		_, err := Setup(context.Background(), cfg, Options{})
		assert.True(t, errs.IsConfiguration(err))
	})

	t.Run("schema unreadable", func(t *testing.T) {
		db := &tableInfoErrDB{fakeDB{dialect: database.DialectSQLite}}
		_, err := Setup(context.Background(), cfg, Options{OpenDB: openFake(db)})
		require.Error(t, err)
		assert.True(t, errs.IsConnectionFailed(err))
		assert.Equal(t, SchemaReadMessage, errs.UserMessage(err))
		assert.True(t, db.closed)
	})
}

func TestSetup_VerifyEndpoints(t *testing.T) {
	m := newModelServer(t, "unused", "SELECT 1")
	cfg := testConfig(m, ModeStandard)
	cfg.VerifyEndpoints = true

	p, err := Setup(context.Background(), cfg, Options{OpenDB: openFake(&fakeDB{dialect: database.DialectSQLite})})
	require.NoError(t, err)
	assert.Equal(t, ModeStandard, p.Mode())
	assert.Contains(t, p.TableInfo(), `CREATE TABLE "tracks"`)

	m.rejectProbes()
	opened := false
	_, err = Setup(context.Background(), cfg, Options{
		OpenDB: func(context.Context) (database.DB, error) {
			opened = true
			return &fakeDB{}, nil
		},
	})
	require.Error(t, err)
	assert.True(t, errs.IsEndpointConfig(err))
	assert.Equal(t, llm.ConfigErrorMessage, errs.UserMessage(err))
	assert.False(t, opened)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":            ModeStandard,
		"standard":    ModeStandard,
		"Schema":      ModeSchema,
		"schema_mode": ModeSchema,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("live")
	assert.True(t, errs.IsConfiguration(err))

	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateTesting.Terminal())
}
