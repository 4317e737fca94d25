// Package chatgpt implements the chat completion client: conversation
// state, request construction, and the non-streaming and streaming
// call paths.
package chatgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/popup-gpt/popup-gpt/pkg/logger"
	"github.com/popup-gpt/popup-gpt/pkg/models"
	"github.com/popup-gpt/popup-gpt/pkg/sse"
)

const (
	DefaultEndpoint      = "https://api.openai.com/v1/chat/completions"
	DefaultModel         = "gpt-4o-mini"
	DefaultSystemMessage = "You are a helpful AI assistant."
)

// ErrNoChoices reports a response whose first choice carries no
// message, which the remote service contract does not allow.
var ErrNoChoices = errors.New("response contains no usable choice")

// Options configures a Client. Zero values fall back to the package
// defaults; a zero HTTPClient gets a client with a connect-friendly
// timeout left off so streaming reads are not cut short.
type Options struct {
	Endpoint      string
	Model         string
	SystemMessage string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	HTTPClient    *http.Client
}

// Client issues chat completion requests and owns the conversation.
//
// Client is not safe for concurrent use: the conversation mutates at
// the end of every call, so callers must hold exclusive access for a
// call's whole duration and never run two calls at once. The stream
// package's Coordinator enforces this.
type Client struct {
	endpoint     string
	token        string
	model        string
	systemMsg    string
	temperature  float64
	topP         float64
	maxTokens    int
	http         *http.Client
	conversation []models.Message
	log          logger.Logger
}

// New creates a Client authenticating with the given bearer token.
func New(token string, opts Options, log logger.Logger) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.SystemMessage == "" {
		opts.SystemMessage = DefaultSystemMessage
	}
	if opts.HTTPClient == nil {
		// No overall timeout: a streaming response stays open for
		// as long as the model keeps generating.
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		endpoint:    opts.Endpoint,
		token:       token,
		model:       opts.Model,
		systemMsg:   opts.SystemMessage,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		maxTokens:   opts.MaxTokens,
		http:        opts.HTTPClient,
		log:         log,
	}
}

// Conversation returns a snapshot of the conversation so far. The
// synthesized system message is never part of it.
func (c *Client) Conversation() []models.Message {
	snapshot := make([]models.Message, len(c.conversation))
	copy(snapshot, c.conversation)
	return snapshot
}

// ClearConversation starts a fresh conversation. Idempotent.
func (c *Client) ClearConversation() {
	c.conversation = c.conversation[:0]
}

// buildRequest snapshots the conversation into a request, prepending
// the system message, which is synthesized per call and never stored.
func (c *Client) buildRequest(stream bool) models.CompletionRequest {
	messages := make([]models.Message, 0, len(c.conversation)+1)
	messages = append(messages, models.SystemMessage(c.systemMsg))
	messages = append(messages, c.conversation...)

	return models.CompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
		Stream:      stream,
	}
}

// apiError is the error envelope the service returns in-body.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error"`
}

func (c *Client) send(ctx context.Context, req models.CompletionRequest, callID string) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	c.log.Debug("sending completion request",
		"call_id", callID, "model", req.Model, "messages", len(req.Messages), "stream", req.Stream)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		var envelope apiErrorEnvelope
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
			return nil, fmt.Errorf("API error (%s): %s", envelope.Error.Type, envelope.Error.Message)
		}
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return resp, nil
}

// Ask appends question to the conversation and performs a blocking,
// non-streaming completion. On success the assistant's answer is
// appended to the conversation and the whole response returned.
func (c *Client) Ask(ctx context.Context, question string) (*models.CompletionResponse, error) {
	c.conversation = append(c.conversation, models.UserMessage(question))

	callID := uuid.NewString()
	resp, err := c.send(ctx, c.buildRequest(false), callID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var completion models.CompletionResponse
	if err := json.Unmarshal(raw, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	content, ok := completion.PrimaryResponse()
	if !ok {
		return nil, ErrNoChoices
	}
	c.conversation = append(c.conversation, models.AssistantMessage(content))

	if total, ok := completion.UsedTokens(); ok {
		c.log.Debug("completion finished", "call_id", callID, "total_tokens", total)
	}

	return &completion, nil
}

// AskStream appends question to the conversation and performs a
// streaming completion, forwarding every decoded partial response to
// sink before merging continues. When the frame sequence ends, the
// accumulated answer is appended to the conversation and returned.
//
// A malformed frame payload aborts the whole call. A mid-stream read
// failure does not: the sequence just ends, and whatever accumulated
// is treated as the answer (logged as aborted).
func (c *Client) AskStream(ctx context.Context, question string, sink func(*models.CompletionResponse)) (*models.CompletionResponse, error) {
	c.conversation = append(c.conversation, models.UserMessage(question))

	callID := uuid.NewString()
	resp, err := c.send(ctx, c.buildRequest(true), callID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	stream := sse.New(resp.Body, c.log)
	accumulated := &models.CompletionResponse{}

	for {
		payload, ok := stream.Next()
		if !ok {
			break
		}

		partial := &models.CompletionResponse{}
		if err := json.Unmarshal([]byte(payload), partial); err != nil {
			return nil, fmt.Errorf("failed to decode stream frame: %w", err)
		}

		accumulated.MergeDelta(partial)
		if sink != nil {
			sink(partial)
		}
	}

	if err := stream.Err(); err != nil {
		c.log.Warn("stream aborted before terminal sentinel", "call_id", callID, "error", err.Error())
	} else {
		c.log.Debug("stream completed", "call_id", callID)
	}

	content, ok := accumulated.PrimaryResponse()
	if !ok {
		return nil, ErrNoChoices
	}
	c.conversation = append(c.conversation, models.AssistantMessage(content))

	return accumulated, nil
}
