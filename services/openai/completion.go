package openai

import (
	"context"
	"errors"
	"strings"

	"pizzachat/core"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds configuration for the OpenAI completion service.
type Config struct {
	APIKey      string
	BaseURL     string // override for tests or compatible providers
	Model       string
	MaxTokens   int
	Temperature float32
	// Preamble is prepended as a system message to every request. The
	// transcript itself never contains it.
	Preamble string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT3Dot5Turbo,
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// CompletionService implements conversation.CompletionGateway using the
// OpenAI chat completions API. One attempt per call, no retries.
type CompletionService struct {
	config Config
	client *openai.Client
	logger *core.Logger
}

// NewCompletionService creates the service, failing fast when the API key
// is missing so a misconfigured gateway is never called.
func NewCompletionService(config Config, logger *core.Logger) (*CompletionService, error) {
	if config.APIKey == "" {
		return nil, &core.ConfigurationError{Key: "OPENAI_API_KEY"}
	}
	if config.Model == "" {
		config.Model = openai.GPT3Dot5Turbo
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2048
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientCfg.BaseURL = config.BaseURL
	}
	return &CompletionService{
		config: config,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}, nil
}

// Complete forwards the transcript to the completion provider and returns
// one assistant message. The preamble goes first in every request; audio is
// already stripped by the caller and has no representation here anyway.
func (s *CompletionService) Complete(ctx context.Context, transcript []core.Message) (core.Message, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)
	if s.config.Preamble != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.config.Preamble,
		})
	}
	for _, m := range transcript {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    convertRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return core.Message{}, &core.UpstreamError{
			Gateway: core.GatewayCompletion,
			Status:  statusFromError(err),
			Err:     err,
		}
	}
	if len(resp.Choices) == 0 {
		return core.Message{}, &core.UpstreamError{
			Gateway: core.GatewayCompletion,
			Err:     errors.New("response contained no choices"),
		}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return core.Message{}, &core.UpstreamError{
			Gateway: core.GatewayCompletion,
			Err:     errors.New("response message had no content"),
		}
	}
	return core.NewMessage(core.RoleAssistant, content), nil
}

func convertRole(role core.Role) string {
	switch role {
	case core.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case core.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func statusFromError(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
