package llm

import (
	"testing"

	"finqa/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	cfg := config.Config{
		LLMProvider: "groq",
		OpenAIKey:   "sk-test",
		GroqKey:     "gsk-test",
	}

	tests := []struct {
		name         string
		provider     string
		cfg          config.Config
		wantProvider string
		wantErr      bool
	}{
		{"openai by name", "openai", cfg, "openai", false},
		{"groq by name", "groq", cfg, "groq", false},
		{"empty name uses default", "", cfg, "groq", false},
		{"unknown provider", "gemini", cfg, "", true},
		{"missing key", "openai", config.Config{LLMProvider: "openai"}, "", true},
		{"no default configured", "", config.Config{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewFromConfig(tt.cfg, tt.provider)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromConfig: %v", err)
			}
			if got := client.Provider(); got != tt.wantProvider {
				t.Errorf("Provider() = %q, want %q", got, tt.wantProvider)
			}
		})
	}
}
