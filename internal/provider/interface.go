// Package provider turns a role-tagged prompt into generated text. The
// default backend posts to an OpenAI-compatible chat-completions endpoint
// over plain HTTP; the other backends (Ollama, OpenAI, Azure OpenAI, Bedrock,
// Gemini) go through eino chat models.
package provider

import (
	"context"
	"errors"
)

// Backend enumerates the supported generation backends.
type Backend string

const (
	// BackendCompletion posts to a raw chat-completions URL.
	BackendCompletion Backend = "completion"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrGenerationTransport covers network errors, timeouts and non-success
	// HTTP statuses from the generation service.
	ErrGenerationTransport = errors.New("generation transport failure")
	// ErrGenerationFormat covers responses that do not carry a completion in
	// the expected shape.
	ErrGenerationFormat = errors.New("generation format failure")
)

// Message is one role-tagged turn of a prompt.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Generator produces the first completion for a prompt.
// Implementations must be safe to call from multiple goroutines. Failures
// wrap ErrGenerationTransport or ErrGenerationFormat.
type Generator interface {
	Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error)
}
