package models

// Chat roles as defined by the chat completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CompletionRequest is a chat completion request.
//
// https://platform.openai.com/docs/api-reference/chat/create
type CompletionRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	N                int       `json:"n,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	User             string    `json:"user,omitempty"`
}

// CompletionResponse is a chat completion response. A non-streaming
// call decodes one whole; a streaming call starts from the zero value
// and grows by MergeDelta, one call per received fragment.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion variant. Index is its stable identity;
// during streaming, Delta carries the increment and Message the
// accumulated text so far.
type Choice struct {
	Index        int           `json:"index"`
	Message      *Message      `json:"message,omitempty"`
	Delta        *MessageDelta `json:"delta,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// MessageDelta is an incremental update to one variant's message.
// A set Role marks the start of that variant's stream.
type MessageDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Usage is the token accounting for a request/response pair.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PrimaryResponse returns the message content of the first choice.
func (r *CompletionResponse) PrimaryResponse() (string, bool) {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return "", false
	}
	return r.Choices[0].Message.Content, true
}

// PrimaryDelta returns the incremental content of the first choice.
func (r *CompletionResponse) PrimaryDelta() (string, bool) {
	if len(r.Choices) == 0 || r.Choices[0].Delta == nil {
		return "", false
	}
	return r.Choices[0].Delta.Content, true
}

// UsedTokens returns the total token count when usage was reported.
func (r *CompletionResponse) UsedTokens() (int, bool) {
	if r.Usage == nil {
		return 0, false
	}
	return r.Usage.TotalTokens, true
}

// MergeDelta folds the delta-bearing choices of other into r in place.
//
// Choices are addressed by index, gap-filling with zero-text entries
// when a sparse index arrives. A delta with a role set (re)initializes
// the message at that index to an empty message of that role; delta
// content appends to it. The remote guarantees role-before-content
// ordering per index, so content arriving first is a contract
// violation upstream and is not defended here.
func (r *CompletionResponse) MergeDelta(other *CompletionResponse) {
	for _, choice := range other.Choices {
		for len(r.Choices) <= choice.Index {
			r.Choices = append(r.Choices, Choice{Index: len(r.Choices)})
		}

		own := &r.Choices[choice.Index]

		if choice.Delta == nil {
			continue
		}
		if choice.Delta.Role != "" {
			own.Message = &Message{Role: choice.Delta.Role}
		}
		if choice.Delta.Content != "" {
			own.Message.Content += choice.Delta.Content
		}
	}
}
