package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/database/connector"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/llm"
	"github.com/koustreak/datchat/internal/prompt"
)

const (
	sqlModel      = "sqlcoder"
	responseModel = "mistral"
)

// modelServer is a fake OpenAI-compatible server. The SQL model replies from
// a script, repeating the last entry once it runs out; the response model
// always replies with answer.
type modelServer struct {
	*httptest.Server

	mu       sync.Mutex
	script   []string
	answer   string
	status   int
	prompts  map[string][]string
	modelsOK bool
}

func newModelServer(t *testing.T, answer string, script ...string) *modelServer {
	t.Helper()
	m := &modelServer{
		script:   script,
		answer:   answer,
		prompts:  make(map[string][]string),
		modelsOK: true,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

func (m *modelServer) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/models":
		m.mu.Lock()
		ok := m.modelsOK
		m.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprint(w, `{"data":[]}`)
		return
	case "/v1/completions":
	default:
		http.NotFound(w, r)
		return
	}

	var req llm.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.prompts[req.Model] = append(m.prompts[req.Model], req.Prompt)
	status := m.status
	var reply string
	if req.Model == responseModel {
		reply = m.answer
	} else if len(m.script) > 0 {
		reply = m.script[0]
		if len(m.script) > 1 {
			m.script = m.script[1:]
		}
	}
	m.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"error":"model overloaded"}`, status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	for _, tok := range strings.SplitAfter(reply, " ") {
		b, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"text": tok, "finish_reason": nil}},
		})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
		w.(http.Flusher).Flush()
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}

func (m *modelServer) promptsFor(model string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts[model]...)
}

func (m *modelServer) rejectProbes() {
	m.mu.Lock()
	m.modelsOK = false
	m.mu.Unlock()
}

func (m *modelServer) fail(status int) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func testConfig(m *modelServer, mode Mode) Config {
	return Config{
		Mode:             mode,
		Prompts:          prompt.Default(),
		SQLModel:         llm.ModelConfig{Model: sqlModel, BaseURL: m.URL + "/v1"},
		ResponseModel:    llm.ModelConfig{Model: responseModel, BaseURL: m.URL + "/v1"},
		MaxRegenerations: DefaultMaxRegenerations,
	}
}

// fakeDB records every query it is asked to run.
type fakeDB struct {
	dialect database.Dialect
	run     func(query string) (*database.Result, error)

	mu      sync.Mutex
	queries []string
	closed  bool
}

func (f *fakeDB) Dialect() database.Dialect { return f.dialect }

func (f *fakeDB) UsableTableNames(context.Context) ([]string, error) {
	return []string{"tracks"}, nil
}

func (f *fakeDB) TableInfo(context.Context) (string, error) {
	return `CREATE TABLE "tracks" (` + "\n\t" + `"TrackId" INTEGER NOT NULL` + "\n)", nil
}

func (f *fakeDB) Run(_ context.Context, query string) (*database.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.run == nil {
		return &database.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}, nil
	}
	return f.run(query)
}

func (f *fakeDB) Close() { f.closed = true }

func (f *fakeDB) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func failingDB() *fakeDB {
	return &fakeDB{
		dialect: database.DialectSQLite,
		run: func(string) (*database.Result, error) {
			return nil, errs.New(errs.ErrKindExecutionFailed, "query could not be executed")
		},
	}
}

func openFake(db database.DB) func(context.Context) (database.DB, error) {
	return func(context.Context) (database.DB, error) { return db, nil }
}

// openChinook seeds a SQLite file with three tracks and opens it through the
// connector.
func openChinook(t *testing.T) func(context.Context) (database.DB, error) {
	t.Helper()
	dir := t.TempDir()

	raw, err := sql.Open("sqlite", filepath.Join(dir, "chinook.db"))
	require.NoError(t, err)
	for _, s := range []string{
		`CREATE TABLE tracks (TrackId INTEGER PRIMARY KEY, Name NVARCHAR(200) NOT NULL, Composer NVARCHAR(220))`,
		`INSERT INTO tracks (TrackId, Name, Composer) VALUES
			(1, 'For Those About To Rock', 'Angus Young'),
			(2, 'Balls to the Wall', NULL),
			(3, 'Fast As a Shark', 'F. Baltes')`,
	} {
		_, err := raw.Exec(s)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	return func(ctx context.Context) (database.DB, error) {
		h, err := connector.Open(ctx, database.ConnectionConfig{
			Engine:   database.EngineSQLite,
			Filename: "chinook.db",
			Dir:      dir,
		}, connector.Options{})
		if err != nil {
			return nil, err
		}
		t.Cleanup(h.Close)
		return h, nil
	}
}
