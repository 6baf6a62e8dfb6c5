package guard

import (
	"regexp"
	"strings"
)

var (
	fence     = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	sqlResult = regexp.MustCompile(`(?is)\bSQLResult:.*$`)
	sqlTags   = regexp.MustCompile(`(?i)\[/?SQL\]`)
)

// CleanSQL extracts the query from raw model output: the body of the first
// fenced block if any, without [SQL] tags, and cut before an echoed
// "SQLResult:" section.
func CleanSQL(raw string) string {
	s := raw
	if m := fence.FindStringSubmatch(s); m != nil {
		s = m[1]
	} else {
		// An unterminated fence is common when a stop sequence fires.
		s = strings.TrimPrefix(strings.TrimSpace(s), "```sql")
		s = strings.TrimPrefix(s, "```")
	}
	s = sqlResult.ReplaceAllString(s, "")
	s = sqlTags.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
