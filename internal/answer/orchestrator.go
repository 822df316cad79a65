// Package answer turns a question into a response: it retrieves passages
// from every configured collection, assembles them into one bounded
// context, and asks the generator for a completion. Generation failures
// never escape; they become FailureMessage.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/finrag-go/internal/budget"
	"github.com/54b3r/finrag-go/internal/logging"
	"github.com/54b3r/finrag-go/internal/provider"
	"github.com/54b3r/finrag-go/internal/rag"
)

const (
	// FailureMessage is returned in place of an answer when generation fails.
	FailureMessage = "Error generating the response."

	// DefaultSystemPrompt is the fixed persona sent as the system turn.
	DefaultSystemPrompt = "You are an assistant specialised in investments."

	// DefaultMaxTokens caps the completion length.
	DefaultMaxTokens = 300

	// DefaultTimeout bounds one generation call.
	DefaultTimeout = 60 * time.Second
)

// DefaultCollections are searched, in this order, when Config.Collections
// is empty.
var DefaultCollections = []string{"books", "finance"}

// userTemplate renders the user turn from the context and the question.
const userTemplate = "Context:\n%s\n\nQuestion: %s"

// Config holds the orchestrator settings.
type Config struct {
	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string
	// MaxTokens defaults to DefaultMaxTokens.
	MaxTokens int
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// Collections lists the collections to search; their order is the order
	// of the assembled context. Defaults to DefaultCollections.
	Collections []string
}

// Result is the outcome of Ask.
type Result struct {
	// Answer is the generated text, or FailureMessage.
	Answer string
	// Context is the assembled context sent to the generator.
	Context string
	// Passages is the number of retrieved passages.
	Passages int
	// Truncated is true when the context was cut to the character budget.
	Truncated bool
	// GenerationFailed is true when Answer is FailureMessage.
	GenerationFailed bool
}

// Orchestrator wires retriever, assembler and generator together.
type Orchestrator struct {
	generator provider.Generator
	retriever *rag.Retriever
	assembler *rag.Assembler
	cfg       Config
	metrics   *Metrics
}

// New constructs an Orchestrator. retriever and assembler may be nil when
// only Answer is used. metrics may be nil.
func New(gen provider.Generator, retriever *rag.Retriever, assembler *rag.Assembler, cfg Config, metrics *Metrics) (*Orchestrator, error) {
	if gen == nil {
		return nil, fmt.Errorf("answer: generator must not be nil")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = DefaultCollections
	}
	if assembler == nil {
		assembler = rag.NewAssembler(0)
	}
	return &Orchestrator{
		generator: gen,
		retriever: retriever,
		assembler: assembler,
		cfg:       cfg,
		metrics:   metrics,
	}, nil
}

// Collections returns the collections searched by Ask, in context order.
func (o *Orchestrator) Collections() []string { return o.cfg.Collections }

// Messages builds the two-turn prompt for query and context.
func (o *Orchestrator) Messages(query, context string) []provider.Message {
	return []provider.Message{
		{Role: provider.RoleSystem, Content: o.cfg.SystemPrompt},
		{Role: provider.RoleUser, Content: fmt.Sprintf(userTemplate, context, query)},
	}
}

// Answer asks the generator to answer query from context. It always
// returns a string: the completion, or FailureMessage when the call fails,
// times out or returns an unexpected shape.
func (o *Orchestrator) Answer(ctx context.Context, query, context string) string {
	out, err := o.generate(ctx, query, context)
	if err != nil {
		return FailureMessage
	}
	return out
}

func (o *Orchestrator) generate(ctx context.Context, query, contextText string) (string, error) {
	log := logging.FromContext(ctx)
	msgs := o.Messages(query, contextText)

	log.Debug("answer: combined context", slog.String("context", contextText))
	log.Debug("answer: prompt size", slog.Int("estimated_tokens", budget.EstimateMessages(msgs)))

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := o.generator.Generate(callCtx, msgs, o.cfg.MaxTokens)
	if err != nil {
		kind := "transport"
		if errors.Is(err, provider.ErrGenerationFormat) {
			kind = "format"
		}
		log.Error("answer: generation failed",
			slog.String("kind", kind),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	log.Info("answer: generated",
		slog.Int("chars", len(out)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// Ask retrieves k passages per collection (k<=0 uses the retriever
// default), assembles the context and answers. A retrieval failure is
// returned as an error; a generation failure is reported in the Result.
func (o *Orchestrator) Ask(ctx context.Context, query string, k int) (Result, error) {
	if o.retriever == nil {
		return Result{}, fmt.Errorf("answer: no retriever configured")
	}
	start := time.Now()

	groups, err := o.retriever.RetrieveGrouped(ctx, query, o.cfg.Collections, k)
	if err != nil {
		o.metrics.observe(outcomeRetrievalError, time.Since(start))
		return Result{}, fmt.Errorf("answer: retrieve: %w", err)
	}

	assembled := o.assembler.Assemble(ctx, groups)
	res := Result{
		Context:   assembled.Text,
		Passages:  assembled.Passages,
		Truncated: assembled.Truncated,
	}

	out, err := o.generate(ctx, query, assembled.Text)
	if err != nil {
		res.Answer = FailureMessage
		res.GenerationFailed = true
		o.metrics.observe(outcomeGenerationError, time.Since(start))
		return res, nil
	}
	res.Answer = out
	o.metrics.observe(outcomeOK, time.Since(start))
	return res, nil
}
