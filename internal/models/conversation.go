package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a session transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest describes one completion call.
type GenerateRequest struct {
	Prompt       string
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// Generation is a successful completion.
type Generation struct {
	Text     string
	Model    string
	Attempts int
}
