package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/medicortex/medicortex/internal/config"
)

// Completer is the chat-model surface the pipeline stages depend on.
type Completer interface {
	// Complete returns the model's text reply to a system/user prompt pair.
	Complete(ctx context.Context, system, user string) (string, error)
	// CompleteJSON forces a JSON object reply and strips markdown fences.
	CompleteJSON(ctx context.Context, system, user string) (string, error)
	// Stream delivers tokens through onToken as they arrive and returns
	// the accumulated reply. A non-nil onToken error aborts the stream.
	Stream(ctx context.Context, system, user string, onToken func(token string) error) (string, error)
}

// Chat wraps an OpenAI-compatible chat-completion endpoint.
type Chat struct {
	client *openai.Client
	model  string
}

// NewChat creates a chat client from LLM config. BaseURL overrides the
// default OpenAI endpoint for self-hosted compatible servers.
func NewChat(cfg config.LLMConfig) *Chat {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Chat{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (c *Chat) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages(system, user),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no chat completion choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Chat) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages(system, user),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no chat completion choices")
	}
	return stripJSONFences(resp.Choices[0].Message.Content), nil
}

func (c *Chat) Stream(ctx context.Context, system, user string, onToken func(token string) error) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages(system, user),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		sb.WriteString(token)
		if onToken != nil {
			if err := onToken(token); err != nil {
				return sb.String(), err
			}
		}
	}
	return sb.String(), nil
}

func chatMessages(system, user string) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})
	return msgs
}

// stripJSONFences removes markdown code fences some models wrap around
// JSON-mode output.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(s)
}
