package embedder

import (
	"log/slog"
	"slices"
	"strings"
)

// chatModelMarkers are name fragments of chat models, which make poor
// embedding models.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
}

func looksLikeChatModel(model string) bool {
	m := strings.ToLower(model)
	return slices.ContainsFunc(chatModelMarkers, func(marker string) bool {
		return strings.Contains(m, marker)
	})
}

// Check is the pre-flight run before the embedder and store are built. It
// fails when the settings cannot work and logs a warning when they probably
// will not do what the operator meant.
func (s Settings) Check(log *slog.Logger) error {
	if err := s.requireCredentials(); err != nil {
		return err
	}
	if s.Backend != BackendHash && s.Model != "" && looksLikeChatModel(s.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model",
			slog.String("model", s.Model),
			slog.String("hint", "use an embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}
	// Hash vectors change meaning when the dimension changes, so a
	// persisted collection is only readable with the same setting.
	if s.Backend == BackendHash && (s.Store == "sqlite" || s.Store == "qdrant") {
		log.Info("embedder: persistent store with hash embedder; keep EMBEDDING_DIMENSIONS stable between runs",
			slog.Int("dimensions", s.Dimensions),
		)
	}
	return nil
}

// Validate runs Check on the settings from the process environment.
func Validate(log *slog.Logger) error {
	return SettingsFromEnv().Check(log)
}
