package session

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the displayable transcript. Turns are immutable once
// appended; ordering is append-only and defines conversational order.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
	IsError   bool
}
