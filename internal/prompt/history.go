package prompt

import "strings"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation so far.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RenderHistory writes prior turns one per line as "User: …" and
// "Assistant: …". Unknown roles are skipped.
func RenderHistory(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			lines = append(lines, "User: "+strings.TrimSpace(t.Content))
		case RoleAssistant:
			lines = append(lines, "Assistant: "+strings.TrimSpace(t.Content))
		}
	}
	return strings.Join(lines, "\n")
}
