package brain

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Persona is the system prompt for phone conversations.
const Persona = "You are Saeed, a helpful and friendly AI assistant having a natural phone conversation. " +
	"Respond naturally and warmly like a real person would. Be knowledgeable, engaging, and conversational on any topic. " +
	"Keep responses natural and not robotic, and short enough to be spoken aloud. " +
	"Don't reintroduce yourself or mention being AI. " +
	"Act like you're continuing an ongoing conversation and be ready to discuss anything the person wants to talk about."

// XAIClient talks to xAI's OpenAI-compatible chat completions endpoint.
type XAIClient struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	persona     string
}

func NewXAIClient(cfg Config) *XAIClient {
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = base
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "grok-3"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}
	return &XAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		persona:     Persona,
	}
}

func (c *XAIClient) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.messages(req),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("xai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *XAIClient) messages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.persona,
	})
	for _, turn := range req.History {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Text,
	})
	return messages
}
