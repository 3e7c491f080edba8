// Package client talks to the inference endpoints behind each bot. One
// backend speaks the native Ollama chat API, the other any
// OpenAI-compatible server; both take a built prompt and return reply
// text or a classified failure.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/w84death/agentic-chat/config"
)

// ErrTimeout marks a bot that did not answer within its deadline. The
// orchestrator skips the turn without retrying.
var ErrTimeout = errors.New("response timeout")

// EndpointError marks an unreachable endpoint or a non-2xx reply. Worth
// one retry; the endpoint may just be loading a model.
type EndpointError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *EndpointError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("endpoint %s: http %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Client sends a prompt to one bot's endpoint and blocks until a reply
// or the bot's timeout.
type Client interface {
	Ask(ctx context.Context, bot config.Bot, p Prompt) (string, error)
}

// New returns a Client that routes each bot to the backend its
// configuration names.
func New(logger *log.Logger) Client {
	if logger == nil {
		logger = log.Default()
	}
	return &dispatcher{
		ollama: NewOllamaClient(logger),
		openai: NewOpenAIClient(logger),
	}
}

type dispatcher struct {
	ollama *OllamaClient
	openai *OpenAIClient
}

func (d *dispatcher) Ask(ctx context.Context, bot config.Bot, p Prompt) (string, error) {
	switch bot.API {
	case config.APIOpenAI:
		return d.openai.Ask(ctx, bot, p)
	default:
		return d.ollama.Ask(ctx, bot, p)
	}
}
