package domain

// Role tags the author of a transcript message.
type Role string

const (
	// RoleSystem is the hidden instruction that seeds every transcript.
	RoleSystem Role = "system"
	// RoleUser is a message typed by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant is a reply produced by the completion API.
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
