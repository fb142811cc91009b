package llm

import "context"

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	// Answer sends the prepared prompt and returns the model's single-line
	// final answer, stripped of surrounding whitespace.
	Answer(ctx context.Context, userPrompt string) (string, error)

	// Provider returns the stable lowercase provider name ("openai", "groq").
	Provider() string
}
