package audit

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key, value, want string
	}{
		{"OPENAI_API_KEY", "sk-abc123", "set"},
		{"OPENAI_API_KEY", "", "unset"},
		{"LANGFUSE_SECRET_KEY", "x", "set"},
		{"MODEL_PROVIDER", "completion", "completion"},
		{"MODEL_PROVIDER", "", "unset"},
		{"COMPLETION_URL", "https://user:pw@llm.internal/v1/chat?key=abc", "https://redacted@llm.internal/v1/chat?redacted"},
		{"QDRANT_HOST", "qdrant.internal", "qdrant.internal"},
	}
	for _, tt := range tests {
		if got := SanitiseKey(tt.key, tt.value); got != tt.want {
			t.Errorf("SanitiseKey(%s, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}

func TestIsSecret(t *testing.T) {
	t.Parallel()
	for _, k := range auditKeys {
		if strings.Contains(k, "KEY") && !IsSecret(k) {
			t.Errorf("%s should be treated as a secret", k)
		}
	}
	if IsSecret("EMBEDDING_MODEL") {
		t.Error("EMBEDDING_MODEL is not a secret")
	}
}

func TestAttrs(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"MODEL_PROVIDER":     "completion",
		"COMPLETION_API_KEY": "secret-value",
	}
	attrs := Attrs("ask", "", func(k string) string { return env[k] })

	got := map[string]string{}
	for _, a := range attrs {
		got[a.Key] = a.Value.String()
	}
	if got["command"] != "ask" || got["config_file"] != "none" {
		t.Errorf("command attrs = %v", got)
	}
	if got["MODEL_PROVIDER"] != "completion" || got["COMPLETION_API_KEY"] != "set" || got["STORE_BACKEND"] != "unset" {
		t.Errorf("env attrs = %v", got)
	}
}

func TestLogCommandStart_NeverLogsSecrets(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "sk-very-secret")

	var buf bytes.Buffer
	LogCommandStart(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)), "serve", "")
	if strings.Contains(buf.String(), "sk-very-secret") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"EMBEDDING_API_KEY":"set"`) {
		t.Errorf("missing presence marker: %s", buf.String())
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("empty path = %q", got)
	}
	if got := sanitiseConfigPath("/tmp/finrag.yaml"); got != "/tmp/finrag.yaml" {
		t.Errorf("tmp path = %q", got)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "/" {
		p := filepath.Join(home, ".finrag", "config.yaml")
		if got := sanitiseConfigPath(p); got != "~/.finrag/config.yaml" {
			t.Errorf("home path = %q", got)
		}
	}
}
