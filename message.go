package contextfold

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is an end-user message.
	RoleUser Role = "user"

	// RoleAssistant is a model reply.
	RoleAssistant Role = "assistant"

	// RoleTool is a tool execution result.
	RoleTool Role = "tool"
)

// Message is one entry of the conversation consumed by the engine. The
// engine reads messages, it never mutates them; raw history remains owned by
// the caller.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Pinned messages are never folded into a summary and always survive
	// into the recent (dynamic) context.
	Pinned bool `json:"pinned,omitempty"`

	// NoCompress behaves like Pinned but is set programmatically by the
	// caller rather than by the user.
	NoCompress bool `json:"no_compress,omitempty"`

	// ToolCallID links an assistant message that issues a tool call with
	// the RoleTool message carrying its result. The pair must never be
	// split across the compression boundary.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// protected reports whether the message must never be summarized.
func (m Message) protected() bool {
	return m.Pinned || m.NoCompress
}

// issuesToolCall reports whether this is an assistant message that starts a
// tool exchange.
func (m Message) issuesToolCall() bool {
	return m.Role == RoleAssistant && m.ToolCallID != ""
}

// isToolResult reports whether this message carries a tool result.
func (m Message) isToolResult() bool {
	return m.Role == RoleTool
}
