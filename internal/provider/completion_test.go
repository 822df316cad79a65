package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

func newTestCompletion(t *testing.T, h http.HandlerFunc) *CompletionGenerator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewCompletionGenerator(ProviderCompletion{URL: srv.URL, Timeout: 5 * time.Second})
}

func TestCompletionGenerator_Success(t *testing.T) {
	t.Parallel()

	var got completionRequest
	g := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Apple pays a dividend."}},{"message":{"content":"ignored"}}]}`)
	})

	msgs := []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "Context:\nX\n\nQuestion: Y"},
	}
	out, err := g.Generate(context.Background(), msgs, 300)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if out != "Apple pays a dividend." {
		t.Errorf("Generate() = %q", out)
	}
	if got.MaxTokens != 300 || len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem {
		t.Errorf("unexpected request body: %+v", got)
	}
}

func TestCompletionGenerator_EmptyContentIsValid(t *testing.T) {
	t.Parallel()
	g := newTestCompletion(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":""}}]}`)
	})
	out, err := g.Generate(context.Background(), nil, 10)
	if err != nil || out != "" {
		t.Errorf("Generate() = %q, %v; want empty string, nil", out, err)
	}
}

func TestCompletionGenerator_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "http 500", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantErr: ErrGenerationTransport},
		{name: "http 404", status: http.StatusNotFound, body: `not found`, wantErr: ErrGenerationTransport},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: ErrGenerationFormat},
		{name: "no choices key", status: http.StatusOK, body: `{"id":"x"}`, wantErr: ErrGenerationFormat},
		{name: "empty choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrGenerationFormat},
		{name: "no message", status: http.StatusOK, body: `{"choices":[{"text":"legacy"}]}`, wantErr: ErrGenerationFormat},
		{name: "null content", status: http.StatusOK, body: `{"choices":[{"message":{"content":null}}]}`, wantErr: ErrGenerationFormat},
		{name: "absent content", status: http.StatusOK, body: `{"choices":[{"message":{"role":"assistant"}}]}`, wantErr: ErrGenerationFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := newTestCompletion(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := g.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, 10)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Generate() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCompletionGenerator_Timeout(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	g := NewCompletionGenerator(ProviderCompletion{URL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := g.Generate(context.Background(), nil, 10)
	if !errors.Is(err, ErrGenerationTransport) {
		t.Errorf("Generate() error = %v, want ErrGenerationTransport", err)
	}
}

func TestCompletionGenerator_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewCompletionGenerator(ProviderCompletion{URL: url, Timeout: time.Second})
	if _, err := g.Generate(context.Background(), nil, 10); !errors.Is(err, ErrGenerationTransport) {
		t.Errorf("Generate() error = %v, want ErrGenerationTransport", err)
	}
}

// fakeChat is a minimal eino chat model.
type fakeChat struct {
	reply *schema.Message
	err   error
	got   []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = in
	return f.reply, f.err
}

func (f *fakeChat) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestEinoGenerator(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: schema.AssistantMessage("answer", nil)}
	g := NewEinoGenerator(chat, "")
	out, err := g.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "q"},
	}, 300)
	if err != nil || out != "answer" {
		t.Fatalf("Generate() = %q, %v", out, err)
	}
	if len(chat.got) != 2 || chat.got[0].Role != schema.System || chat.got[1].Role != schema.User {
		t.Errorf("unexpected messages sent: %+v", chat.got)
	}

	failing := NewEinoGenerator(&fakeChat{err: errors.New("dial tcp: refused")}, "t")
	if _, err := failing.Generate(context.Background(), nil, 0); !errors.Is(err, ErrGenerationTransport) {
		t.Errorf("call error = %v, want ErrGenerationTransport", err)
	}

	empty := NewEinoGenerator(&fakeChat{}, "t")
	if _, err := empty.Generate(context.Background(), nil, 0); !errors.Is(err, ErrGenerationFormat) {
		t.Errorf("nil reply error = %v, want ErrGenerationFormat", err)
	}
}

func TestNew_CompletionBackend(t *testing.T) {
	t.Parallel()
	g, err := New(context.Background(), &Config{
		Backend:    BackendCompletion,
		Completion: ProviderCompletion{URL: "http://127.0.0.1:1/v1/chat/completions"},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := g.(*CompletionGenerator); !ok {
		t.Errorf("New() = %T, want *CompletionGenerator", g)
	}

	if _, err := New(context.Background(), &Config{Backend: "nope"}); err == nil {
		t.Error("New() with unknown backend should fail")
	}
}
