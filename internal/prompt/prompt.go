// Package prompt holds the three prompt templates of a pipeline, checks them
// for the placeholders each generation step fills in, and renders them.
//
// Templates use single-brace placeholders ({input}, {table_info}, …). A
// literal brace is written doubled: {{ or }}.
package prompt

import (
	"strings"

	"github.com/koustreak/datchat/internal/errs"
)

// Placeholder names filled in by the pipeline.
const (
	Input         = "input"
	TableInfo     = "table_info"
	History       = "history"
	Question      = "question"
	Query         = "query"
	Results       = "results"
	WrongSQLQuery = "wrong_sql_query"
)

// Contract names a template and the placeholders it must contain.
type Contract struct {
	Key          string // config key
	Display      string // name shown to users
	Placeholders []string
}

// Contracts lists the templates in validation order.
var Contracts = []Contract{
	{Key: "sql", Display: "prompt template of SQL Assistant", Placeholders: []string{Input, TableInfo, History}},
	{Key: "response", Display: "prompt template of AI Assistant", Placeholders: []string{History, Question, Query, Results}},
	{Key: "regen", Display: "prompt template(Regeneration) of SQL Assistant", Placeholders: []string{Input, TableInfo, WrongSQLQuery}},
}

// Set is the immutable trio of templates a pipeline runs with.
type Set struct {
	SQL      string `yaml:"sql"`
	Response string `yaml:"response"`
	Regen    string `yaml:"regen"`
}

func (s Set) template(key string) string {
	switch key {
	case "sql":
		return s.SQL
	case "response":
		return s.Response
	default:
		return s.Regen
	}
}

// Check returns the display name of the first template missing a required
// placeholder, with the missing placeholders in contract order. ok is true
// when every template is complete.
func (s Set) Check() (display string, missing []string, ok bool) {
	for _, c := range Contracts {
		tmpl := s.template(c.Key)
		for _, p := range c.Placeholders {
			if !strings.Contains(tmpl, "{"+p+"}") {
				missing = append(missing, "{"+p+"}")
			}
		}
		if len(missing) > 0 {
			return c.Display, missing, false
		}
	}
	return "", nil, true
}

// Validate reports the first incomplete template as a configuration error,
// e.g. "Missing key {history} in prompt template of SQL Assistant".
func (s Set) Validate() error {
	display, missing, ok := s.Check()
	if ok {
		return nil
	}
	return errs.Newf(errs.ErrKindConfiguration, "Missing key %s in %s", strings.Join(missing, ", "), display)
}

// Vars maps placeholder names to their values.
type Vars map[string]string

// Format fills the placeholders of tmpl from vars. Placeholders without a
// value are left untouched; doubled braces become single braces.
func Format(tmpl string, vars Vars) string {
	var sb strings.Builder
	sb.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				sb.WriteString(tmpl[i:])
				return sb.String()
			}
			name := tmpl[i+1 : i+1+end]
			if v, ok := vars[name]; ok {
				sb.WriteString(v)
			} else {
				sb.WriteString(tmpl[i : i+2+end])
			}
			i += end + 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// SQLPrompt renders the generation template.
func (s Set) SQLPrompt(question, tableInfo, history string) string {
	return Format(s.SQL, Vars{Input: question, TableInfo: tableInfo, History: history})
}

// RegenPrompt renders the regeneration template around a query that failed.
func (s Set) RegenPrompt(question, tableInfo, wrongSQL string) string {
	return Format(s.Regen, Vars{Input: question, TableInfo: tableInfo, WrongSQLQuery: wrongSQL})
}

// ResponsePrompt renders the answer template.
func (s Set) ResponsePrompt(history, question, query, results string) string {
	return Format(s.Response, Vars{History: history, Question: question, Query: query, Results: results})
}
