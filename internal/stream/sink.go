// Package stream carries model output from an endpoint to whoever displays it.
//
// An endpoint calls Sink.OnToken once per token, in order, and OnComplete once
// when its stream ends. A Buffer accumulates the tokens of one generation and
// hands the growing text to a Consumer, optionally framed by a prefix and a
// closing suffix.
package stream

import (
	"io"
	"strings"
	"sync"
)

// Messages shown ahead of generated SQL.
const (
	SQLMessage           = "Generated SQL query:"
	SQLMessageSchemaMode = "Generated SQL query (schema mode, not executed):"
)

// Sink receives the tokens of one generation.
type Sink interface {
	OnToken(token string)
	OnComplete()
}

// Consumer receives the full text of a Buffer after every token (final is
// false) and once more on completion with decorations applied (final is true).
type Consumer func(text string, final bool)

// Buffer is an append-only Sink that is reset after each completion, so one
// Buffer can serve many turns without leaking text between them.
type Buffer struct {
	prefix   string
	suffix   string
	consumer Consumer

	mu  sync.Mutex
	buf strings.Builder
}

// NewBuffer returns a Buffer that frames its text with prefix and, on
// completion, suffix. A nil consumer discards output.
func NewBuffer(prefix, suffix string, consumer Consumer) *Buffer {
	if consumer == nil {
		consumer = func(string, bool) {}
	}
	return &Buffer{prefix: prefix, suffix: suffix, consumer: consumer}
}

// NewSQLBuffer returns a Buffer that presents generated SQL under message in
// a fenced sql block.
func NewSQLBuffer(message string, consumer Consumer) *Buffer {
	return NewBuffer(message+"\n```sql\n", "  \n```", consumer)
}

// OnToken implements Sink.
func (b *Buffer) OnToken(token string) {
	b.mu.Lock()
	b.buf.WriteString(token)
	text := b.prefix + b.buf.String()
	b.mu.Unlock()

	b.consumer(text, false)
}

// OnComplete implements Sink.
func (b *Buffer) OnComplete() {
	b.mu.Lock()
	text := b.prefix + b.buf.String() + b.suffix
	b.buf.Reset()
	b.mu.Unlock()

	b.consumer(text, true)
}

// Reset drops buffered tokens without emitting anything, for generations
// that fail midway.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

// Text returns the tokens received since the last completion, undecorated.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Funcs adapts two functions to a Sink. Nil fields are skipped.
type Funcs struct {
	Token    func(token string)
	Complete func()
}

// OnToken implements Sink.
func (f Funcs) OnToken(token string) {
	if f.Token != nil {
		f.Token(token)
	}
}

// OnComplete implements Sink.
func (f Funcs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// Discard is a Sink that ignores everything.
var Discard Sink = Funcs{}

// Writer returns a Consumer that prints only what is new since its previous
// call, so a terminal shows the text growing in place. On completion it
// writes the remaining decoration and a newline.
func Writer(w io.Writer) Consumer {
	var (
		mu      sync.Mutex
		printed string
	)
	return func(text string, final bool) {
		mu.Lock()
		defer mu.Unlock()

		if strings.HasPrefix(text, printed) {
			_, _ = io.WriteString(w, text[len(printed):])
		} else {
			_, _ = io.WriteString(w, "\n"+text)
		}
		printed = text
		if final {
			_, _ = io.WriteString(w, "\n")
			printed = ""
		}
	}
}
