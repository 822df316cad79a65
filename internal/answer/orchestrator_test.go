package answer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/finrag-go/internal/embedder"
	"github.com/54b3r/finrag-go/internal/provider"
	"github.com/54b3r/finrag-go/internal/rag"
	"github.com/54b3r/finrag-go/internal/store"
)

// recordingGenerator returns a fixed reply and remembers the prompt.
type recordingGenerator struct {
	reply     string
	err       error
	msgs      []provider.Message
	maxTokens int
}

func (g *recordingGenerator) Generate(_ context.Context, msgs []provider.Message, maxTokens int) (string, error) {
	g.msgs = msgs
	g.maxTokens = maxTokens
	return g.reply, g.err
}

// blockingGenerator waits for its context to end.
type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ []provider.Message, _ int) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// brokenEmbedder always fails.
type brokenEmbedder struct{}

func (brokenEmbedder) Dimension() int { return 8 }
func (brokenEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedder offline")
}

func TestOrchestrator_Messages(t *testing.T) {
	t.Parallel()
	o, err := New(&recordingGenerator{}, nil, nil, Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msgs := o.Messages("What is the dividend yield?", "A\n\nB")
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != provider.RoleSystem || msgs[0].Content != DefaultSystemPrompt {
		t.Errorf("system turn = %+v", msgs[0])
	}
	want := "Context:\nA\n\nB\n\nQuestion: What is the dividend yield?"
	if msgs[1].Role != provider.RoleUser || msgs[1].Content != want {
		t.Errorf("user turn = %q, want %q", msgs[1].Content, want)
	}
}

func TestOrchestrator_AnswerSuccess(t *testing.T) {
	t.Parallel()
	gen := &recordingGenerator{reply: "Buy low."}
	o, _ := New(gen, nil, nil, Config{}, nil)

	if got := o.Answer(context.Background(), "q", "ctx"); got != "Buy low." {
		t.Errorf("Answer() = %q", got)
	}
	if gen.maxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", gen.maxTokens, DefaultMaxTokens)
	}
}

func TestOrchestrator_AnswerHTTP500ReturnsSentinel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"overloaded"}`)
	}))
	t.Cleanup(srv.Close)

	gen := provider.NewCompletionGenerator(provider.ProviderCompletion{URL: srv.URL, Timeout: 5 * time.Second})
	o, _ := New(gen, nil, nil, Config{}, nil)

	if got := o.Answer(context.Background(), "q", "ctx"); got != FailureMessage {
		t.Errorf("Answer() = %q, want %q", got, FailureMessage)
	}
}

func TestOrchestrator_AnswerMalformedReturnsSentinel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":null}}]}`)
	}))
	t.Cleanup(srv.Close)

	gen := provider.NewCompletionGenerator(provider.ProviderCompletion{URL: srv.URL})
	o, _ := New(gen, nil, nil, Config{}, nil)

	if got := o.Answer(context.Background(), "q", "ctx"); got != FailureMessage {
		t.Errorf("Answer() = %q, want %q", got, FailureMessage)
	}
}

func TestOrchestrator_AnswerTimeoutReturnsSentinel(t *testing.T) {
	t.Parallel()
	o, _ := New(blockingGenerator{}, nil, nil, Config{Timeout: 20 * time.Millisecond}, nil)

	done := make(chan string, 1)
	go func() { done <- o.Answer(context.Background(), "q", "ctx") }()

	select {
	case got := <-done:
		if got != FailureMessage {
			t.Errorf("Answer() = %q, want %q", got, FailureMessage)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Answer() did not honour the timeout")
	}
}

// newAskFixture builds an orchestrator over a memory store holding one book
// passage and one finance passage.
func newAskFixture(t *testing.T, gen provider.Generator, emb rag.Embedder, maxChars int) (*Orchestrator, *prometheus.Registry) {
	t.Helper()
	ctx := context.Background()
	hash := embedder.NewHashEmbedder(32)
	s := store.NewMemory()

	seed := map[string]string{
		"books":   "A high dividend yield can signal a value trap.",
		"finance": "Dividend yield: 0.5%",
	}
	for name, text := range seed {
		coll, err := s.GetOrCreate(ctx, name)
		if err != nil {
			t.Fatalf("GetOrCreate: %v", err)
		}
		vecs, _ := hash.Embed(ctx, []string{text})
		if err := coll.Upsert(ctx, []rag.Passage{{ID: name + "_0", Text: text, Embedding: vecs[0]}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	if emb == nil {
		emb = hash
	}
	r, err := rag.NewRetriever(emb, s, 2)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	reg := prometheus.NewRegistry()
	o, err := New(gen, r, rag.NewAssembler(maxChars), Config{}, NewMetrics(reg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, reg
}

func TestOrchestrator_AskEndToEnd(t *testing.T) {
	t.Parallel()
	gen := &recordingGenerator{reply: "It is 0.5%."}
	o, _ := newAskFixture(t, gen, nil, 0)

	res, err := o.Ask(context.Background(), "dividend yield", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "It is 0.5%." || res.GenerationFailed {
		t.Errorf("Result = %+v", res)
	}
	wantCtx := "A high dividend yield can signal a value trap.\n\nDividend yield: 0.5%"
	if res.Context != wantCtx {
		t.Errorf("Context = %q, want %q", res.Context, wantCtx)
	}
	if res.Passages != 2 || res.Truncated {
		t.Errorf("Passages=%d Truncated=%v", res.Passages, res.Truncated)
	}
	if !strings.HasSuffix(gen.msgs[1].Content, "Question: dividend yield") {
		t.Errorf("user turn = %q", gen.msgs[1].Content)
	}
	if got := testutil.ToFloat64(o.metrics.queriesTotal.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("ok queries = %v, want 1", got)
	}
}

func TestOrchestrator_AskTruncatesContext(t *testing.T) {
	t.Parallel()
	gen := &recordingGenerator{reply: "ok"}
	o, _ := newAskFixture(t, gen, nil, 10)

	res, err := o.Ask(context.Background(), "dividend yield", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !res.Truncated || res.Context != "A high div" {
		t.Errorf("Context = %q, Truncated = %v", res.Context, res.Truncated)
	}
}

func TestOrchestrator_AskGenerationFailure(t *testing.T) {
	t.Parallel()
	gen := &recordingGenerator{err: provider.ErrGenerationTransport}
	o, _ := newAskFixture(t, gen, nil, 0)

	res, err := o.Ask(context.Background(), "dividend yield", 0)
	if err != nil {
		t.Fatalf("Ask should not fail on generation errors: %v", err)
	}
	if res.Answer != FailureMessage || !res.GenerationFailed {
		t.Errorf("Result = %+v", res)
	}
	if got := testutil.ToFloat64(o.metrics.queriesTotal.WithLabelValues(outcomeGenerationError)); got != 1 {
		t.Errorf("generation_error queries = %v, want 1", got)
	}
}

func TestOrchestrator_AskRetrievalFailure(t *testing.T) {
	t.Parallel()
	o, _ := newAskFixture(t, &recordingGenerator{reply: "x"}, brokenEmbedder{}, 0)

	if _, err := o.Ask(context.Background(), "q", 0); err == nil {
		t.Fatal("Ask should return retrieval errors")
	}
	if got := testutil.ToFloat64(o.metrics.queriesTotal.WithLabelValues(outcomeRetrievalError)); got != 1 {
		t.Errorf("retrieval_error queries = %v, want 1", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, nil, nil, Config{}, nil); err == nil {
		t.Error("want error for nil generator")
	}
	o, _ := New(&recordingGenerator{}, nil, nil, Config{}, nil)
	if _, err := o.Ask(context.Background(), "q", 0); err == nil {
		t.Error("Ask without a retriever should fail")
	}
	if got := o.Collections(); len(got) != 2 || got[0] != "books" || got[1] != "finance" {
		t.Errorf("Collections() = %v", got)
	}
}
