package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/datchat/internal/database"
	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/guard"
	"github.com/koustreak/datchat/internal/llm"
	"github.com/koustreak/datchat/internal/logger"
	"github.com/koustreak/datchat/internal/metrics"
	"github.com/koustreak/datchat/internal/prompt"
	"github.com/koustreak/datchat/internal/stream"
)

// Endpoint names, used in logs and metrics.
const (
	EndpointSQL       = "sql"
	EndpointSQLSchema = "sql_schema"
	EndpointResponse  = "response"
)

// ExhaustedMessage is what users see when no generated query would run.
const ExhaustedMessage = "No executable SQL query could be generated for this question."

// Sinks receive the streamed output of a session's endpoints. Nil sinks
// discard output.
type Sinks struct {
	SQL       stream.Sink
	SQLSchema stream.Sink
	Response  stream.Sink
}

// Answer is the outcome of one turn. It is returned on failure too, carrying
// whatever was produced before the turn failed.
type Answer struct {
	TurnID   string
	Question string
	Mode     Mode

	// SQL is the last candidate query, normalized when it got that far.
	SQL string
	// ReadOnly is the guard's verdict on SQL.
	ReadOnly bool
	// Attempts counts calls to the SQL generator.
	Attempts int

	Result *database.Result
	Text   string

	Trace []State
}

// State returns the state the turn ended in.
func (a *Answer) State() State {
	if len(a.Trace) == 0 {
		return ""
	}
	return a.Trace[len(a.Trace)-1]
}

func (a *Answer) enter(s State) {
	a.Trace = append(a.Trace, s)
}

// Session owns one set of endpoints and sinks. Turns on a session run one
// at a time; use one session per user.
type Session struct {
	id string
	p  *Pipeline

	sqlGen    *llm.Endpoint
	schemaGen *llm.Endpoint
	responder *llm.Endpoint

	log *logger.Logger
	mu  sync.Mutex
}

// NewSession builds the three endpoints of a session, each bound to its own
// sink.
func (p *Pipeline) NewSession(sinks Sinks) (*Session, error) {
	id := uuid.NewString()
	log := p.log.With().Str("session", id).Logger()
	opts := []llm.Option{llm.WithHTTPClient(p.client), llm.WithLogger(log)}

	sqlGen, err := llm.New(EndpointSQL, p.cfg.SQLModel, sinks.SQL, opts...)
	if err != nil {
		return nil, err
	}
	schemaGen, err := llm.New(EndpointSQLSchema, p.cfg.SQLModel, sinks.SQLSchema, opts...)
	if err != nil {
		return nil, err
	}
	responder, err := llm.New(EndpointResponse, p.cfg.ResponseModel, sinks.Response, opts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:        id,
		p:         p,
		sqlGen:    sqlGen,
		schemaGen: schemaGen,
		responder: responder,
		log:       log,
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Ask answers question in the context of history, the prior turns of the
// conversation. The returned Answer is never nil.
func (s *Session) Ask(ctx context.Context, question string, history []prompt.Turn) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ans := &Answer{
		TurnID:   uuid.NewString(),
		Question: question,
		Mode:     s.p.cfg.Mode,
	}
	log := s.log.With().Str("turn", ans.TurnID).Logger()
	log.InfoWith("turn started", map[string]interface{}{"question": question, "mode": string(ans.Mode)})

	var err error
	if s.p.cfg.Mode == ModeSchema {
		err = s.askSchema(ctx, ans, prompt.RenderHistory(history), log)
	} else {
		err = s.askStandard(ctx, ans, prompt.RenderHistory(history), log)
	}

	if err != nil {
		ans.enter(StateFailed)
		metrics.ObserveTurn(string(ans.Mode), errs.KindOf(err).String(), ans.Attempts)
		log.ErrorWith("turn failed", err, map[string]interface{}{
			"attempts": ans.Attempts,
			"query":    ans.SQL,
		})
		return ans, err
	}

	metrics.ObserveTurn(string(ans.Mode), "succeeded", ans.Attempts)
	log.InfoWith("turn succeeded", map[string]interface{}{
		"attempts": ans.Attempts,
		"query":    ans.SQL,
	})
	return ans, nil
}

func (s *Session) askStandard(ctx context.Context, ans *Answer, history string, log *logger.Logger) error {
	prompts := s.p.cfg.Prompts
	tableInfo := s.p.tableInfo
	dialect := s.p.db.Dialect()

	ans.enter(StateGenerating)
	candidate, err := s.generate(ctx, ans, s.sqlGen, prompts.SQLPrompt(ans.Question, tableInfo, history))
	if err != nil {
		return err
	}

	var result *database.Result
	for regenerations := 0; ; regenerations++ {
		ans.SQL = candidate

		ans.enter(StateValidatingSafety)
		if err := s.p.guard.Check(candidate); err != nil {
			metrics.IncrementUnsafeQuery(string(ModeStandard))
			return err
		}
		ans.ReadOnly = true

		ans.enter(StateNormalizing)
		candidate = guard.Normalize(candidate, dialect)
		ans.SQL = candidate

		ans.enter(StateTesting)
		var ok bool
		if result, ok = s.p.tester.TryRun(ctx, candidate); ok {
			break
		}

		if regenerations >= s.p.cfg.MaxRegenerations {
			return errs.Wrap(errs.ErrKindRegenerationExhausted, ExhaustedMessage,
				fmt.Errorf("%d generation attempts, last query: %s", ans.Attempts, candidate))
		}

		ans.enter(StateRegenerating)
		metrics.IncrementRegeneration()
		log.InfoWith("Regenerating SQL query", map[string]interface{}{
			"regeneration": regenerations + 1,
			"wrong_query":  candidate,
		})
		candidate, err = s.generate(ctx, ans, s.sqlGen, prompts.RegenPrompt(ans.Question, tableInfo, candidate))
		if err != nil {
			return err
		}
	}

	ans.Result = result
	ans.enter(StateSucceeded)

	text, err := s.complete(ctx, s.responder, prompts.ResponsePrompt(history, ans.Question, ans.SQL, result.String()))
	if err != nil {
		return err
	}
	ans.Text = text
	return nil
}

// askSchema generates a query from the configured schema text. The guard
// verdict is reported on the answer; the query is never run.
func (s *Session) askSchema(ctx context.Context, ans *Answer, history string, log *logger.Logger) error {
	ans.enter(StateGenerating)
	candidate, err := s.generate(ctx, ans, s.schemaGen, s.p.cfg.Prompts.SQLPrompt(ans.Question, s.p.tableInfo, history))
	if err != nil {
		return err
	}
	ans.SQL = candidate

	ans.enter(StateValidatingSafety)
	ans.ReadOnly = s.p.guard.IsReadOnly(candidate)
	if !ans.ReadOnly {
		metrics.IncrementUnsafeQuery(string(ModeSchema))
		log.Warn("schema mode query contains write operations")
	}

	ans.enter(StateSucceeded)
	return nil
}

// generate asks ep for SQL and strips the markup models wrap around it.
func (s *Session) generate(ctx context.Context, ans *Answer, ep *llm.Endpoint, text string) (string, error) {
	ans.Attempts++
	raw, err := s.complete(ctx, ep, text)
	if err != nil {
		return "", err
	}
	return guard.CleanSQL(raw), nil
}

func (s *Session) complete(ctx context.Context, ep *llm.Endpoint, text string) (string, error) {
	start := time.Now()
	out, err := ep.Complete(ctx, text)
	metrics.ObserveEndpoint(ep.Name(), time.Since(start), err)
	return out, err
}
