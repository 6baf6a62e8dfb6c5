package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/datchat/internal/errs"
	"github.com/koustreak/datchat/internal/pipeline"
	"github.com/koustreak/datchat/internal/prompt"
	"github.com/koustreak/datchat/internal/stream"
)

const maxAskBody = 1 << 20

// Event types streamed by /v1/ask.
const (
	EventSQLToken    = "sql_token"
	EventSQL         = "sql"
	EventAnswerToken = "answer_token"
	EventAnswer      = "answer"
	EventError       = "error"
)

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string        `json:"question"`
	History  []prompt.Turn `json:"history,omitempty"`
}

// Event is one line of the /v1/ask stream.
type Event struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id,omitempty"`

	// Token carries one streamed token.
	Token string `json:"token,omitempty"`

	// Set on sql events.
	SQL      string `json:"sql,omitempty"`
	ReadOnly *bool  `json:"read_only,omitempty"`
	Executed *bool  `json:"executed,omitempty"`
	Attempts int    `json:"attempts,omitempty"`

	// Set on answer events.
	Text    string   `json:"text,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`

	// Set on error events.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// eventWriter serializes events onto the response, flushing after each so
// clients see tokens as they arrive.
type eventWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	fl  http.Flusher
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	fl, _ := w.(http.Flusher)
	return &eventWriter{enc: json.NewEncoder(w), fl: fl}
}

func (e *eventWriter) send(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(ev)
	if e.fl != nil {
		e.fl.Flush()
	}
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errs.Wrap(errs.ErrKindInvalidInput, "Request body must be a JSON object with a question.", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, errs.New(errs.ErrKindInvalidInput, "Question must not be empty."))
		return
	}

	events := newEventWriter(w)
	tokens := func(kind string) stream.Sink {
		return stream.Funcs{Token: func(tok string) { events.send(Event{Type: kind, Token: tok}) }}
	}
	session, err := s.pipeline.NewSession(pipeline.Sinks{
		SQL:       tokens(EventSQLToken),
		SQLSchema: tokens(EventSQLToken),
		Response:  tokens(EventAnswerToken),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx := r.Context()
	var deadline time.Time
	if s.cfg.AskTimeout > 0 {
		deadline = time.Now().Add(s.cfg.AskTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.log.WarnWith("could not extend write deadline", map[string]interface{}{"error": err.Error()})
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	ans, err := session.Ask(ctx, req.Question, req.History)

	if ans.SQL != "" {
		readOnly := ans.ReadOnly
		executed := ans.Result != nil
		events.send(Event{
			Type:     EventSQL,
			TurnID:   ans.TurnID,
			SQL:      ans.SQL,
			ReadOnly: &readOnly,
			Executed: &executed,
			Attempts: ans.Attempts,
		})
	}
	if err != nil {
		events.send(Event{
			Type:    EventError,
			TurnID:  ans.TurnID,
			Kind:    errs.KindOf(err).String(),
			Message: errs.UserMessage(err),
		})
		return
	}
	if ans.Mode == pipeline.ModeStandard {
		ev := Event{Type: EventAnswer, TurnID: ans.TurnID, Text: ans.Text}
		if ans.Result != nil {
			ev.Columns = ans.Result.Columns
			ev.Rows = ans.Result.Rows
		}
		events.send(ev)
	}
}
