package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoGenerator adapts an eino chat model to the Generator interface.
// Globally registered callback handlers (tracing) observe every call.
type EinoGenerator struct {
	chat model.BaseChatModel
	name string
}

// NewEinoGenerator wraps chat. name labels the run in callback traces.
func NewEinoGenerator(chat model.BaseChatModel, name string) *EinoGenerator {
	if name == "" {
		name = "finrag-answer"
	}
	return &EinoGenerator{chat: chat, name: name}
}

// Generate converts msgs to eino messages and returns the model's reply.
// Any error from the model call is a transport failure; an empty reply is a
// format failure.
func (g *EinoGenerator) Generate(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	in := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			in = append(in, schema.SystemMessage(m.Content))
		case RoleAssistant:
			in = append(in, schema.AssistantMessage(m.Content, nil))
		default:
			in = append(in, schema.UserMessage(m.Content))
		}
	}

	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      g.name,
		Component: components.ComponentOfChatModel,
	})

	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	out, err := g.chat.Generate(ctx, in, opts...)
	if err != nil {
		return "", fmt.Errorf("provider: %w: %w", ErrGenerationTransport, err)
	}
	if out == nil || out.Content == "" {
		return "", fmt.Errorf("provider: %w: model returned no content", ErrGenerationFormat)
	}
	return out.Content, nil
}
