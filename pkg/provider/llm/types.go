package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of a conversation sent to a model.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain-text body of the message.
	Content string
}

// ModelCapabilities describes the limits of a model.
type ModelCapabilities struct {
	// ContextWindow is the maximum number of tokens (prompt + completion).
	ContextWindow int

	// MaxOutputTokens is the maximum number of tokens in one completion.
	MaxOutputTokens int

	// SupportsJSONMode reports whether the provider can constrain the output
	// to a single JSON object.
	SupportsJSONMode bool
}
