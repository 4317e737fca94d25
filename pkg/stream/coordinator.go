// Package stream decouples the blocking completion call from a
// presentation layer that must never block. A producer goroutine owns
// the client for the duration of one call and forwards decoded partial
// responses over a channel; a relay goroutine hands them to the UI
// channel in arrival order, followed by a single terminal signal.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/popup-gpt/popup-gpt/pkg/logger"
	"github.com/popup-gpt/popup-gpt/pkg/models"
)

// ErrCallInFlight reports an attempt to start a call while another is
// still running. One call at a time is a contract, not a queue.
var ErrCallInFlight = errors.New("a completion call is already in flight")

// MsgKind discriminates the messages the presentation layer receives.
type MsgKind int

const (
	// MsgFinal carries the whole response of a non-streaming call.
	MsgFinal MsgKind = iota
	// MsgPartial carries one decoded streaming fragment.
	MsgPartial
	// MsgFlush marks the end of a call, successful or not. It is
	// always the last message of a call, after every partial.
	MsgFlush
)

// UIMsg is the only thing the core sends across the presentation
// boundary.
type UIMsg struct {
	Kind     MsgKind
	Response *models.CompletionResponse
	Err      error // set on MsgFlush when the call failed
}

// Completer is the client surface the coordinator drives.
type Completer interface {
	Ask(ctx context.Context, question string) (*models.CompletionResponse, error)
	AskStream(ctx context.Context, question string, sink func(*models.CompletionResponse)) (*models.CompletionResponse, error)
	ClearConversation()
	Conversation() []models.Message
}

// Coordinator serializes access to a Completer between the UI and the
// per-call worker goroutine. The worker holds the write lock for a
// call's whole duration; UI reads take the read lock.
type Coordinator struct {
	client   Completer
	mu       sync.RWMutex
	inFlight atomic.Bool
	out      chan UIMsg
	log      logger.Logger
}

// New creates a Coordinator around client. The UI channel is buffered
// generously relative to the fragment rate so the worker effectively
// never blocks on it.
func New(client Completer, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		client: client,
		out:    make(chan UIMsg, 256),
		log:    log,
	}
}

// Messages returns the channel the presentation layer consumes.
func (c *Coordinator) Messages() <-chan UIMsg {
	return c.out
}

// InFlight reports whether a call is currently running.
func (c *Coordinator) InFlight() bool {
	return c.inFlight.Load()
}

// Ask starts a non-streaming call on a worker goroutine. The answer
// arrives on the UI channel as MsgFinal followed by MsgFlush.
func (c *Coordinator) Ask(ctx context.Context, question string) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrCallInFlight
	}

	go func() {
		defer c.inFlight.Store(false)

		c.mu.Lock()
		resp, err := c.client.Ask(ctx, question)
		c.mu.Unlock()

		if err != nil {
			c.log.Error("completion call failed", "error", err.Error())
			c.out <- UIMsg{Kind: MsgFlush, Err: err}
			return
		}
		c.out <- UIMsg{Kind: MsgFinal, Response: resp}
		c.out <- UIMsg{Kind: MsgFlush}
	}()

	return nil
}

// AskStream starts a streaming call. Partial responses arrive on the
// UI channel as MsgPartial in the order the stream yielded them;
// MsgFlush follows once every partial of this call has been relayed.
func (c *Coordinator) AskStream(ctx context.Context, question string) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrCallInFlight
	}

	partials := make(chan *models.CompletionResponse, 256)
	relayed := make(chan struct{})

	// Relay: forwards fragments until the producer closes the
	// channel. Kept separate from the producer so the blocking
	// network read never waits on the UI.
	go func() {
		defer close(relayed)
		for partial := range partials {
			c.out <- UIMsg{Kind: MsgPartial, Response: partial}
		}
	}()

	// Producer: owns the client exclusively for the whole call.
	go func() {
		defer c.inFlight.Store(false)

		c.mu.Lock()
		_, err := c.client.AskStream(ctx, question, func(partial *models.CompletionResponse) {
			partials <- partial
		})
		c.mu.Unlock()

		close(partials)
		<-relayed // every partial is on the UI channel before the flush

		if err != nil {
			c.log.Error("streaming call failed", "error", err.Error())
		}
		c.out <- UIMsg{Kind: MsgFlush, Err: err}
	}()

	return nil
}

// ClearConversation resets the client's conversation. It blocks until
// any in-flight call releases the client.
func (c *Coordinator) ClearConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.ClearConversation()
}

// Conversation returns a snapshot of the conversation so far.
func (c *Coordinator) Conversation() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client.Conversation()
}
