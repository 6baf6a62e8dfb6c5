package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/datchat/internal/errs"
)

func TestSet_Check(t *testing.T) {
	complete := Set{
		SQL:      "{input} {table_info} {history}",
		Response: "{history} {question} {query} {results}",
		Regen:    "{input} {table_info} {wrong_sql_query}",
	}

	tests := []struct {
		name        string
		set         Set
		wantDisplay string
		wantMissing []string
	}{
		{
			name: "complete",
			set:  complete,
		},
		{
			name:        "sql missing history",
			set:         Set{SQL: "{input} {table_info}", Response: complete.Response, Regen: complete.Regen},
			wantDisplay: "prompt template of SQL Assistant",
			wantMissing: []string{"{history}"},
		},
		{
			name:        "first failing template wins",
			set:         Set{SQL: complete.SQL, Response: "{history}", Regen: ""},
			wantDisplay: "prompt template of AI Assistant",
			wantMissing: []string{"{question}", "{query}", "{results}"},
		},
		{
			name:        "regen missing everything",
			set:         Set{SQL: complete.SQL, Response: complete.Response, Regen: "fix it"},
			wantDisplay: "prompt template(Regeneration) of SQL Assistant",
			wantMissing: []string{"{input}", "{table_info}", "{wrong_sql_query}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display, missing, ok := tt.set.Check()
			assert.Equal(t, tt.wantDisplay == "", ok)
			assert.Equal(t, tt.wantDisplay, display)
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}

func TestSet_Validate(t *testing.T) {
	require.NoError(t, Default().Validate())

	set := Default()
	set.SQL = "Question: {input}"
	err := set.Validate()
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Equal(t, "Missing key {table_info}, {history} in prompt template of SQL Assistant", errs.UserMessage(err))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{"fills", "Q: {input}\nS: {table_info}", Vars{Input: "How many tracks?", TableInfo: "CREATE TABLE tracks"}, "Q: How many tracks?\nS: CREATE TABLE tracks"},
		{"repeated", "{input} / {input}", Vars{Input: "x"}, "x / x"},
		{"escaped braces", `{{"a": 1}} {input}`, Vars{Input: "q"}, `{"a": 1} q`},
		{"unknown kept", "{input} {other}", Vars{Input: "q"}, "q {other}"},
		{"unterminated", "{input} {oops", Vars{Input: "q"}, "q {oops"},
		{"value with braces not re-expanded", "{input}", Vars{Input: "{table_info}"}, "{table_info}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.tmpl, tt.vars))
		})
	}
}

func TestSet_Render(t *testing.T) {
	set := Set{
		SQL:      "{history}|{input}|{table_info}",
		Response: "{history}|{question}|{query}|{results}",
		Regen:    "{input}|{table_info}|{wrong_sql_query}",
	}

	assert.Equal(t, "h|q|s", set.SQLPrompt("q", "s", "h"))
	assert.Equal(t, "q|s|SELECT Foo", set.RegenPrompt("q", "s", "SELECT Foo"))
	assert.Equal(t, "h|q|SELECT 1|[(1,)]", set.ResponsePrompt("h", "q", "SELECT 1", "[(1,)]"))
}

func TestRenderHistory(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "How many tracks are there?"},
		{Role: RoleAssistant, Content: " There are 3503 tracks. "},
		{Role: "system", Content: "ignored"},
	}
	assert.Equal(t, "User: How many tracks are there?\nAssistant: There are 3503 tracks.", RenderHistory(turns))
	assert.Empty(t, RenderHistory(nil))
}
