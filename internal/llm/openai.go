package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"finqa/internal/prompt"
)

const (
	defaultChatTimeout     = 60 * time.Second
	defaultChatTemperature = 0.1

	// Groq exposes an OpenAI-compatible surface, so both providers share
	// one client implementation behind different base URLs.
	groqBaseURL = "https://api.groq.com/openai/v1"

	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"

	defaultOpenAIModel = "gpt-4-turbo-preview"
	defaultGroqModel   = "llama-3.3-70b-versatile"
)

// ChatClient calls an OpenAI-compatible Chat Completions API.
type ChatClient struct {
	provider string
	model    openai.ChatModel
	client   *openai.Client
}

// NewOpenAIClient builds a client with defaults against api.openai.com.
func NewOpenAIClient(apiKey string, model openai.ChatModel) (*ChatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key required")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &ChatClient{provider: ProviderOpenAI, model: model, client: &cli}, nil
}

// NewGroqClient builds a client against Groq's OpenAI-compatible endpoint.
func NewGroqClient(apiKey string, model openai.ChatModel) (*ChatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("groq api key required")
	}
	if model == "" {
		model = defaultGroqModel
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(groqBaseURL))
	return &ChatClient{provider: ProviderGroq, model: model, client: &cli}, nil
}

func (c *ChatClient) Provider() string {
	if c == nil {
		return ""
	}
	return c.provider
}

func (c *ChatClient) Answer(ctx context.Context, userPrompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil llm client")
	}
	reqCtx, cancel := context.WithTimeout(ctx, defaultChatTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(prompt.SystemMessage, userPrompt),
		Temperature: openai.Float(defaultChatTemperature),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%s: no choices returned", c.provider)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}
