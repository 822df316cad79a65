package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/finrag-go/internal/version"
)

// isolateEnv points every configuration source at t's temp dirs.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("LOG_LEVEL", "error")
	for _, k := range []string{
		"FINRAG_CONFIG", "RAG_COLLECTIONS", "RAG_TOP_K", "RAG_MAX_CONTEXT_CHARS",
		"EMBEDDING_DIMENSIONS", "EMBEDDING_MODEL", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY",
		"INGEST_CHUNKER", "INGEST_CHUNK_SIZE", "INGEST_CHUNK_OVERLAP",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("EMBEDDING_PROVIDER", "hash")
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.Execute()
	return out.String(), err
}

func TestAsk_EndToEnd(t *testing.T) {
	dir := isolateEnv(t)
	writeFile(t, filepath.Join(dir, "books", "the_intelligent_investor.txt"),
		"Mr. Market offers you a price every day.\n\nA margin of safety protects against error.")
	writeFile(t, filepath.Join(dir, "snapshots", "aapl.yaml"), "short_name: Apple Inc.\ncloses: [100, 120]\n")
	manifest := filepath.Join(dir, "corpus.yaml")
	writeFile(t, manifest, "books:\n  - path: books/the_intelligent_investor.txt\nsnapshots:\n  - ticker: AAPL\n    path: snapshots/aapl.yaml\n")

	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Mr. Market is a metaphor."}}]}`)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("MODEL_PROVIDER", "completion")
	t.Setenv("COMPLETION_URL", srv.URL)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RAG_CORPUS", manifest)

	out, err := run(t, "ask", "-k", "1", "Who is Mr. Market?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if strings.TrimSpace(out) != "Mr. Market is a metaphor." {
		t.Errorf("output = %q", out)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, want := range []string{"specialised in investments", "Mr. Market offers you a price", "Ticker: AAPL", "Who is Mr. Market?"} {
		if !strings.Contains(body, want) {
			t.Errorf("completion request missing %q:\n%s", want, body)
		}
	}
}

func TestAsk_GenerationFailurePrintsSentinel(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("MODEL_PROVIDER", "completion")
	t.Setenv("COMPLETION_URL", srv.URL)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RAG_CORPUS", "")

	out, err := run(t, "ask", "anything")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if strings.TrimSpace(out) != "Error generating the response." {
		t.Errorf("output = %q", out)
	}
}

func TestIngest_PersistsToSQLite(t *testing.T) {
	dir := isolateEnv(t)
	book := filepath.Join(dir, "rich_dad.md")
	writeFile(t, book, "Assets put money in your pocket.\n\n\n\nLiabilities take it out.")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("STORE_PATH", filepath.Join(dir, "finrag.db"))

	out, err := run(t, "ingest", "-c", "books", "-m", "author=Kiyosaki", book)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, "books\trich-dad\t2 passages") {
		t.Errorf("output = %q", out)
	}

	out, err = run(t, "ingest", "-c", "books", "--id", "rich-dad", book)
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if !strings.Contains(out, "2 passages") {
		t.Errorf("re-ingest output = %q", out)
	}
}

func TestIngest_Errors(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STORE_BACKEND", "memory")

	if _, err := run(t, "ingest"); err == nil {
		t.Error("ingest without arguments should fail")
	}
	if _, err := run(t, "ingest", "-m", "novalue", "x.txt"); err == nil {
		t.Error("malformed --meta should fail")
	}
	if _, err := run(t, "ingest", "missing.txt"); err == nil {
		t.Error("missing file should fail")
	}
}

func TestParseMetadata(t *testing.T) {
	t.Parallel()
	md, err := parseMetadata([]string{"author=Graham", " year =1949", "note=a=b"})
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if md["author"] != "Graham" || md["year"] != "1949" || md["note"] != "a=b" {
		t.Errorf("parseMetadata = %v", md)
	}
	if _, err := parseMetadata([]string{"=x"}); err == nil {
		t.Error("empty key should fail")
	}
}

func TestVersion_JSON(t *testing.T) {
	isolateEnv(t)
	out, err := run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var info version.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if info.Version != version.Version {
		t.Errorf("version = %q", info.Version)
	}
}

func TestRoot_MissingConfigFails(t *testing.T) {
	isolateEnv(t)
	if _, err := run(t, "--config", "/nonexistent/finrag.yaml", "version"); err == nil {
		t.Error("an explicit missing config should fail")
	}
}

func TestGlobalFlags_LogOptions(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")

	f := &globalFlags{logFormat: "text"}
	opts := f.logOptions()
	if opts.Level != "warn" || opts.Format != "text" {
		t.Errorf("logOptions() = %+v, want env level and flag format", opts)
	}

	f.logLevel = "debug"
	if got := f.logOptions().Level; got != "debug" {
		t.Errorf("flag level = %q, want debug", got)
	}
}
