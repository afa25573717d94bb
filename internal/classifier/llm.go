package classifier

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"github.com/talkincode/wacrm/config"
)

// Completer returns the text of a single chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	N           int           `json:"n"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// ChatClient calls an OpenAI compatible /chat/completions endpoint.
type ChatClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

var _ Completer = (*ChatClient)(nil)

func NewChatClient(cfg config.LLMConfig) *ChatClient {
	return &ChatClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.ApiKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		N:           1,
	}
	var (
		resp chatResponse
		code int
	)
	flow := gout.POST(c.baseURL + "/chat/completions").
		WithContext(ctx).
		SetJSON(&req).
		BindJSON(&resp).
		Code(&code)
	if c.apiKey != "" {
		flow = flow.SetHeader(gout.H{"Authorization": "Bearer " + c.apiKey})
	}
	if c.timeout > 0 {
		flow = flow.SetTimeout(c.timeout)
	}
	if err := flow.Do(); err != nil {
		return "", errors.Wrap(err, "llm request")
	}
	if code != http.StatusOK {
		msg := http.StatusText(code)
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return "", errors.Errorf("llm status %d: %s", code, msg)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
