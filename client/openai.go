package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/w84death/agentic-chat/config"
)

// OpenAIClient speaks the chat-completions API that most local servers
// (Ollama, llama.cpp, LM Studio) expose alongside their native one. The
// bot's endpoint is used as the base URL.
type OpenAIClient struct {
	logger *log.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAIClient(logger *log.Logger) *OpenAIClient {
	if logger == nil {
		logger = log.Default()
	}
	return &OpenAIClient{logger: logger, clients: make(map[string]*openai.Client)}
}

func (c *OpenAIClient) clientFor(endpoint string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[endpoint]; ok {
		return cl
	}

	// Local servers accept any key; a real one can be supplied via env.
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = "local"
	}
	cl := openai.NewClient(
		option.WithBaseURL(strings.TrimRight(endpoint, "/")),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	c.clients[endpoint] = &cl
	return &cl
}

func (c *OpenAIClient) Ask(ctx context.Context, bot config.Bot, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, bot.Timeout())
	defer cancel()

	start := time.Now()
	completion, err := c.clientFor(bot.Endpoint).Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		Model: openai.ChatModel(bot.Model),
	})
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("bot timed out", "bot", bot.Name, "timeout", bot.Timeout())
			return "", fmt.Errorf("%s: %w", bot.Name, ErrTimeout)
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &EndpointError{Endpoint: bot.Endpoint, Status: apiErr.StatusCode, Err: err}
		}
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: err}
	}

	if len(completion.Choices) == 0 {
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: errors.New("no choices in response")}
	}
	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	if reply == "" {
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: errors.New("empty response content")}
	}

	c.logger.Debug("openai-compatible reply",
		"bot", bot.Name,
		"model", bot.Model,
		"duration", time.Since(start),
		"chars", len(reply),
	)
	return reply, nil
}
