package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type capture struct {
	texts  []string
	finals []string
}

func (c *capture) consume(text string, final bool) {
	if final {
		c.finals = append(c.finals, text)
		return
	}
	c.texts = append(c.texts, text)
}

func TestBuffer_EmitsCurrentText(t *testing.T) {
	c := &capture{}
	b := NewBuffer("", "", c.consume)

	b.OnToken("There ")
	b.OnToken("are ")
	b.OnToken("3503 tracks.")
	assert.Equal(t, "There are 3503 tracks.", b.Text())
	b.OnComplete()

	assert.Equal(t, []string{"There ", "There are ", "There are 3503 tracks."}, c.texts)
	assert.Equal(t, []string{"There are 3503 tracks."}, c.finals)
	assert.Empty(t, b.Text())
}

func TestBuffer_ResetBetweenTurns(t *testing.T) {
	c := &capture{}
	b := NewSQLBuffer(SQLMessage, c.consume)

	b.OnToken("SELECT COUNT(*) ")
	b.OnToken("FROM tracks")
	b.OnComplete()

	b.OnToken("SELECT 1")
	b.OnComplete()

	assert.Equal(t, []string{
		"Generated SQL query:\n```sql\nSELECT COUNT(*) FROM tracks  \n```",
		"Generated SQL query:\n```sql\nSELECT 1  \n```",
	}, c.finals)
	assert.Equal(t, "Generated SQL query:\n```sql\nSELECT 1", c.texts[len(c.texts)-1])
}

func TestBuffer_NilConsumer(t *testing.T) {
	b := NewBuffer("x", "y", nil)
	assert.NotPanics(t, func() {
		b.OnToken("a")
		b.OnComplete()
	})
}

func TestFuncs(t *testing.T) {
	var tokens []string
	done := 0
	s := Funcs{Token: func(tok string) { tokens = append(tokens, tok) }, Complete: func() { done++ }}

	s.OnToken("a")
	s.OnToken("b")
	s.OnComplete()
	assert.Equal(t, []string{"a", "b"}, tokens)
	assert.Equal(t, 1, done)

	assert.NotPanics(t, func() {
		Discard.OnToken("x")
		Discard.OnComplete()
	})
}

func TestWriter(t *testing.T) {
	var out bytes.Buffer
	b := NewSQLBuffer(SQLMessage, Writer(&out))

	b.OnToken("SELECT ")
	b.OnToken("1")
	b.OnComplete()

	assert.Equal(t, "Generated SQL query:\n```sql\nSELECT 1  \n```\n", out.String())
}

func TestBuffer_Reset(t *testing.T) {
	c := &capture{}
	b := NewBuffer("", "", c.consume)

	b.OnToken("SELECT")
	b.Reset()
	b.OnToken("SELECT 1")
	b.OnComplete()

	assert.Equal(t, []string{"SELECT 1"}, c.finals)
}
