package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/54b3r/finrag-go/internal/answer"
	"github.com/54b3r/finrag-go/internal/chunker"
	"github.com/54b3r/finrag-go/internal/config"
	"github.com/54b3r/finrag-go/internal/corpus"
	"github.com/54b3r/finrag-go/internal/embedder"
	"github.com/54b3r/finrag-go/internal/ingestion"
	"github.com/54b3r/finrag-go/internal/logging"
	"github.com/54b3r/finrag-go/internal/provider"
	"github.com/54b3r/finrag-go/internal/rag"
	"github.com/54b3r/finrag-go/internal/server"
	"github.com/54b3r/finrag-go/internal/store"
	"github.com/54b3r/finrag-go/internal/tracing"
	"github.com/54b3r/finrag-go/internal/version"
)

// app holds the components shared by serve, ask and ingest. Embedder and
// store are built once here and injected everywhere else.
type app struct {
	settings     *config.Settings
	registry     *prometheus.Registry
	embedder     rag.Embedder
	store        rag.Store
	pipeline     *ingestion.Pipeline
	orchestrator *answer.Orchestrator
	pingers      []server.Pinger
	closers      []func()
}

// buildOptions selects the parts of the app a command needs.
type buildOptions struct {
	// withGenerator builds the generator and orchestrator.
	withGenerator bool
}

// buildApp wires configuration into components.
func buildApp(ctx context.Context, opts buildOptions) (_ *app, err error) {
	log := logging.FromContext(ctx)

	settings, err := config.SettingsFromEnv()
	if err != nil {
		return nil, err
	}

	a := &app{settings: settings, registry: newRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	embSettings := embedder.SettingsFromEnv()
	if err := embSettings.Check(log); err != nil {
		return nil, err
	}
	emb, err := embSettings.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	if settings.EmbedCacheSize > 0 {
		emb = embedder.NewCached(emb, settings.EmbedCacheSize, embedder.NewCacheMetrics(a.registry))
	}
	a.embedder = emb
	log.Info("embedder initialised",
		slog.String("backend", embSettings.Backend),
		slog.Int("dimension", emb.Dimension()),
	)

	storeCfg, err := store.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(storeCfg, emb.Dimension())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", storeCfg.Backend, err)
	}
	a.store = st
	a.closers = append(a.closers, func() { _ = st.Close() })
	if p, ok := st.(interface{ Ping(context.Context) error }); ok {
		a.pingers = append(a.pingers, server.PingFunc{Label: "store", Fn: p.Ping})
	}
	log.Info("store opened", slog.String("backend", string(storeCfg.Backend)))

	defaultChunker, err := chunker.New(chunker.Kind(settings.Chunker), settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	a.pipeline, err = ingestion.NewPipeline(emb, st, &ingestion.Config{
		DefaultChunker: defaultChunker,
		// A snapshot is one passage.
		Chunkers:    map[string]rag.Chunker{corpus.DefaultFinanceCollection: chunker.Whole{}},
		Concurrency: settings.IngestConcurrency,
	}, ingestion.NewMetrics(a.registry))
	if err != nil {
		return nil, err
	}

	if !opts.withGenerator {
		return a, nil
	}

	a.closers = append(a.closers, tracing.Install(tracing.ConfigFromEnv(), log))

	providerCfg := provider.ConfigFromEnv()
	gen, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))
	if providerCfg.Backend == provider.BackendCompletion {
		a.pingers = append(a.pingers, server.NewHTTPPinger("completion", providerCfg.Completion.URL, nil))
	}
	if u := embSettings.HealthURL(); u != "" {
		a.pingers = append(a.pingers, server.NewHTTPPinger("embedder", u, nil))
	}

	retriever, err := rag.NewRetriever(emb, st, settings.TopK)
	if err != nil {
		return nil, err
	}
	a.orchestrator, err = answer.New(gen, retriever, rag.NewAssembler(settings.MaxContextChars), answer.Config{
		SystemPrompt: settings.SystemPrompt,
		Collections:  settings.Collections,
	}, answer.NewMetrics(a.registry))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ingestCorpus ingests the configured manifest, if any. Unreadable entries
// and failed sources are logged; the remaining sources are still indexed.
func (a *app) ingestCorpus(ctx context.Context) error {
	if a.settings.Corpus == "" {
		return nil
	}
	ctx, log := logging.With(ctx, slog.String("corpus", a.settings.Corpus))

	m, err := corpus.LoadManifest(a.settings.Corpus)
	if err != nil {
		return err
	}
	sources, err := m.Sources(ctx, corpus.FileExtractor{})
	if err != nil {
		log.Warn("corpus: some entries were skipped", slog.Any("error", err))
	}
	res := a.pipeline.IngestBatch(ctx, sources)
	total := 0
	for _, n := range res.Passages {
		total += n
	}
	log.Info("corpus ingested",
		slog.Int("sources", len(sources)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("passages", total),
	)
	if len(sources) > 0 && len(res.Failed) == len(sources) {
		return fmt.Errorf("corpus: every source failed: %w", res.Err())
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// newRegistry returns a registry carrying the runtime collectors and the
// finrag_build_info gauge.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	info := version.Get()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "finrag",
			Name:        "build_info",
			Help:        "Build metadata of the running binary.",
			ConstLabels: prometheus.Labels{"version": info.Version, "commit": info.Commit, "go_version": info.GoVersion},
		}, func() float64 { return 1 }),
	)
	return reg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
