package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/w84death/agentic-chat/config"
)

// OllamaClient speaks the native Ollama chat API, non-streaming.
type OllamaClient struct {
	httpClient *http.Client
	logger     *log.Logger
}

func NewOllamaClient(logger *log.Logger) *OllamaClient {
	if logger == nil {
		logger = log.Default()
	}
	// Per-call deadlines come from each bot's timeout via the context.
	return &OllamaClient{httpClient: &http.Client{}, logger: logger}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (c *OllamaClient) Ask(ctx context.Context, bot config.Bot, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, bot.Timeout())
	defer cancel()

	endpoint := strings.TrimRight(bot.Endpoint, "/") + "/api/chat"
	body, err := json.Marshal(ollamaRequest{
		Model:  bot.Model,
		Stream: false,
		Messages: []ollamaMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request for %s: %w", bot.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", bot.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("bot timed out", "bot", bot.Name, "timeout", bot.Timeout())
			return "", fmt.Errorf("%s: %w", bot.Name, ErrTimeout)
		}
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%s: %w", bot.Name, ErrTimeout)
		}
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &EndpointError{Endpoint: bot.Endpoint, Status: resp.StatusCode}
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: fmt.Errorf("non-json payload: %w", err)}
	}
	reply := strings.TrimSpace(parsed.Message.Content)
	if reply == "" {
		return "", &EndpointError{Endpoint: bot.Endpoint, Err: errors.New("empty response content")}
	}

	c.logger.Debug("ollama reply",
		"bot", bot.Name,
		"model", bot.Model,
		"duration", time.Since(start),
		"chars", len(reply),
	)
	return reply, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
