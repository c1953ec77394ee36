package chat

import "strings"

// Role is the author of a transcript message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one transcript entry. ReplyTo is set on bot replies to the
// user message they answer.
type Message struct {
	ID      string
	Role    Role
	Content string
	ReplyTo string
}

// roleFromHistory maps a stored history role onto the transcript roles.
func roleFromHistory(role string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "bot":
		return RoleBot, true
	case "user":
		return RoleUser, true
	default:
		return "", false
	}
}
