// Package audit records one structured line per CLI invocation: the command,
// the config file in effect, and the operational environment. Secrets are
// logged as "set" or "unset", never by value; URLs lose any userinfo.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// auditKeys is the ordered list of variables included in every entry.
var auditKeys = []string{
	"MODEL_PROVIDER",
	"COMPLETION_URL",
	"COMPLETION_MODEL",
	"COMPLETION_API_KEY",
	"OLLAMA_HOST",
	"OPENAI_API_KEY",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_ENDPOINT",
	"GOOGLE_API_KEY",
	"BEDROCK_API_KEY",
	"EMBEDDING_PROVIDER",
	"EMBEDDING_MODEL",
	"EMBEDDING_API_KEY",
	"STORE_BACKEND",
	"STORE_PATH",
	"QDRANT_HOST",
	"QDRANT_API_KEY",
	"RAG_COLLECTIONS",
	"RAG_CORPUS",
	"LOG_LEVEL",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
}

// secretSuffixes mark a variable as a credential.
var secretSuffixes = []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_TOKEN", "_PASSWORD"}

// LogCommandStart emits the audit entry for command.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", Attrs(command, configPath, os.Getenv)...)
}

// Attrs builds the audit attributes, reading variables through getenv.
func Attrs(command, configPath string, getenv func(string) string) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(auditKeys)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, key := range auditKeys {
		attrs = append(attrs, slog.String(key, SanitiseKey(key, getenv(key))))
	}
	return attrs
}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	for _, s := range secretSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// SanitiseKey returns the loggable form of value: presence only for secrets,
// URLs without userinfo, "unset" for empty values.
func SanitiseKey(key, value string) string {
	if IsSecret(key) {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	if strings.Contains(value, "://") {
		return redactURL(value)
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// redactURL drops userinfo and query strings, which may carry tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.User("redacted")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

// sanitiseConfigPath returns the path with the home directory shortened to
// "~", or "none" when no file was loaded.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
