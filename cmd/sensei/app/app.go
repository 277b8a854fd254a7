// Package app builds the sensei component graph from a resolved config.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/sensei/pkg/aperture"
	"github.com/papercomputeco/sensei/pkg/config"
	"github.com/papercomputeco/sensei/pkg/dotdir"
	"github.com/papercomputeco/sensei/pkg/embeddings"
	embeddingsutils "github.com/papercomputeco/sensei/pkg/embeddings/utils"
	"github.com/papercomputeco/sensei/pkg/episode"
	"github.com/papercomputeco/sensei/pkg/gatekeeper"
	"github.com/papercomputeco/sensei/pkg/governor"
	"github.com/papercomputeco/sensei/pkg/llm"
	llmutils "github.com/papercomputeco/sensei/pkg/llm/utils"
	"github.com/papercomputeco/sensei/pkg/logger"
	"github.com/papercomputeco/sensei/pkg/memory/episodic"
	"github.com/papercomputeco/sensei/pkg/memory/graph"
	graphutils "github.com/papercomputeco/sensei/pkg/memory/graph/utils"
	"github.com/papercomputeco/sensei/pkg/memorywriter"
	"github.com/papercomputeco/sensei/pkg/metrics"
	"github.com/papercomputeco/sensei/pkg/policy"
	"github.com/papercomputeco/sensei/pkg/queue"
	queueutils "github.com/papercomputeco/sensei/pkg/queue/utils"
	"github.com/papercomputeco/sensei/pkg/resource"
	resourceutils "github.com/papercomputeco/sensei/pkg/resource/utils"
	"github.com/papercomputeco/sensei/pkg/runtime"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/storage/postgres"
	storageutils "github.com/papercomputeco/sensei/pkg/storage/utils"
	"github.com/papercomputeco/sensei/pkg/study"
	studyinmemory "github.com/papercomputeco/sensei/pkg/study/inmemory"
	studypostgres "github.com/papercomputeco/sensei/pkg/study/postgres"
	"github.com/papercomputeco/sensei/pkg/summarizer"
	"github.com/papercomputeco/sensei/pkg/vector"
	vectorutils "github.com/papercomputeco/sensei/pkg/vector/utils"
	"github.com/papercomputeco/sensei/pkg/worker"
)

const (
	sqliteFile    = "sensei.db"
	vectorFile    = "vectors.db"
	resourceIndex = "resources.bleve"
)

// Options carries process-level inputs that are not part of sensei.toml.
type Options struct {
	// ConfigDir overrides .sensei/ resolution for default file locations.
	ConfigDir string

	// Call replaces every configured model when set.
	Call llm.CallFunc

	// Embedder replaces the configured embedding provider when set.
	Embedder embeddings.Embedder

	Logger *zap.Logger
}

// App is the wired runtime. Close releases every backend it opened.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Storage    storage.Driver
	Policy     *policy.Engine
	Assembler  *aperture.Assembler
	Episodes   *episode.Manager
	Summarizer *summarizer.Summarizer
	Writer     *memorywriter.Writer
	Governor   *governor.Governor
	Resources  resource.Driver
	Study      study.Store
	Runtime    *runtime.Runtime

	// Mux routes tasks to their handlers; Queue delivers into it.
	Mux   *queue.Mux
	Queue queue.Queue

	closers []func() error
}

// New builds the component graph. On error everything opened so far is
// closed.
func New(ctx context.Context, cfg *config.Config, o Options) (*App, error) {
	log := logger.OrNop(o.Logger)
	a := &App{Config: cfg, Logger: log, Metrics: metrics.New()}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	if err := a.openStorage(ctx, o.ConfigDir); err != nil {
		return nil, err
	}

	pcfg, err := policy.LoadConfig(cfg.Policy.ManifestPath, cfg.Policy.GovernancePath)
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}
	a.Policy, err = policy.NewEngine(pcfg, log.Named("policy"), a.Metrics)
	if err != nil {
		return nil, err
	}

	embedder := o.Embedder
	if embedder == nil {
		embedder, err = embeddingsutils.NewEmbedder(&embeddingsutils.NewEmbedderOpts{
			ProviderType: cfg.Embedding.Provider,
			TargetURL:    cfg.Embedding.Target,
			Model:        cfg.Embedding.Model,
			Dimensions:   cfg.Embedding.Dimensions,
			APIKey:       cfg.LLM.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		a.closers = append(a.closers, embedder.Close)
	}

	vectors, err := a.openVectors(ctx, o.ConfigDir)
	if err != nil {
		return nil, err
	}
	episodicStore, err := episodic.NewStore(episodic.Config{Embedder: embedder, Vectors: vectors, Logger: log.Named("episodic")})
	if err != nil {
		return nil, err
	}

	semantic, err := a.openGraph(embedder)
	if err != nil {
		return nil, err
	}

	a.Study = studyinmemory.NewStore()
	if pg, ok := a.Storage.(*postgres.Driver); ok {
		a.Study = studypostgres.NewStore(pg.Pool)
	}

	if err := a.openResources(o.ConfigDir); err != nil {
		return nil, err
	}

	classify, summarize, extract := o.Call, o.Call, o.Call
	if o.Call == nil {
		if classify, err = a.caller("gatekeeper", true); err != nil {
			return nil, err
		}
		if summarize, err = a.caller("summarizer", false); err != nil {
			return nil, err
		}
		if extract, err = a.caller("triples", true); err != nil {
			return nil, err
		}
	}

	timeout, err := cfg.ApertureTimeout()
	if err != nil {
		return nil, err
	}
	a.Assembler = aperture.New(aperture.Config{
		Resources:        a.Resources,
		Episodic:         episodicStore,
		Study:            a.Study,
		Artifacts:        a.Storage,
		Timeout:          timeout,
		PartialOnTimeout: cfg.Aperture.PartialOnTimeout,
		MemoryLimit:      cfg.Aperture.MemoryLimit,
		ArtifactLimit:    cfg.Aperture.ArtifactLimit,
		Metrics:          a.Metrics,
		Logger:           log.Named("aperture"),
	})

	a.Summarizer, err = summarizer.New(summarizer.Config{
		Store:       a.Storage,
		Call:        summarize,
		RawBuffer:   cfg.Summarizer.RawBuffer,
		ChunkWords:  cfg.Summarizer.ChunkWords,
		TokenBudget: cfg.Summarizer.TokenBudget,
		MaxDepth:    cfg.Summarizer.MaxDepth,
		Metrics:     a.Metrics,
		Logger:      log.Named("summarizer"),
	})
	if err != nil {
		return nil, err
	}

	a.Governor, err = governor.New(governor.Config{Artifacts: a.Storage, Metrics: a.Metrics, Logger: log.Named("governor")})
	if err != nil {
		return nil, err
	}

	// The queue delivers into the mux; handlers are registered once the
	// components they need exist.
	a.Mux = queue.NewMux()
	a.Queue, err = queueutils.NewQueue(ctx, &queueutils.NewQueueOpts{
		Backend: cfg.Queue.Backend,
		Target:  cfg.Queue.Target,
		Stream:  cfg.Queue.Stream,
		Group:   cfg.Queue.Group,
		Workers: cfg.Queue.Workers,
		Handler: a.Mux.Serve,
		Metrics: a.Metrics,
		Logger:  log.Named("queue"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating queue: %w", err)
	}
	a.closers = append(a.closers, a.Queue.Close)

	a.Episodes, err = episode.New(episode.Config{
		Store:          a.Storage,
		Queue:          a.Queue,
		CloseThreshold: cfg.Episode.CloseThreshold,
		Logger:         log.Named("episode"),
	})
	if err != nil {
		return nil, err
	}

	gk, err := gatekeeper.New(gatekeeper.Config{Call: classify, Metrics: a.Metrics, Logger: log.Named("gatekeeper")})
	if err != nil {
		return nil, err
	}
	a.Writer, err = memorywriter.New(memorywriter.Config{
		Classifier: gk,
		Episodic:   episodicStore,
		Rules:      a.Policy,
		Semantic:   semantic,
		Extract:    extract,
		Study:      a.Study,
		Episodes:   a.Episodes,
		Messages:   a.Storage,
		Summarizer: a.Summarizer,
		Logger:     log.Named("memorywriter"),
	})
	if err != nil {
		return nil, err
	}

	worker.Register(a.Mux, worker.Config{
		Writer:     a.Writer,
		Summarizer: a.Summarizer,
		Resources:  a.Resources,
		Logger:     log.Named("worker"),
	})

	a.Runtime, err = runtime.New(runtime.Config{
		Policy:    a.Policy,
		Assembler: a.Assembler,
		Messages:  a.Storage,
		Episodes:  a.Episodes,
		Governor:  a.Governor,
		Queue:     a.Queue,
		Logger:    log.Named("runtime"),
	})
	if err != nil {
		return nil, err
	}

	built = true
	return a, nil
}

func (a *App) defaultPath(configDir, name string) (string, error) {
	return dotdir.NewManager().Path(configDir, name)
}

func (a *App) openStorage(ctx context.Context, configDir string) error {
	sqlitePath := a.Config.Storage.SQLitePath
	if a.Config.Storage.Driver == "sqlite" && sqlitePath == "" {
		p, err := a.defaultPath(configDir, sqliteFile)
		if err != nil {
			return err
		}
		sqlitePath = p
	}

	driver, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
		Driver:      a.Config.Storage.Driver,
		SQLitePath:  sqlitePath,
		PostgresDSN: a.Config.Storage.PostgresDSN,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	a.Storage = driver
	a.closers = append(a.closers, driver.Close)
	a.Logger.Info("storage ready", zap.String("driver", a.Config.Storage.Driver))
	return nil
}

func (a *App) openVectors(ctx context.Context, configDir string) (vector.VectorDriver, error) {
	target := a.Config.VectorStore.Target
	if a.Config.VectorStore.Provider == "sqlite" && target == "" {
		p, err := a.defaultPath(configDir, vectorFile)
		if err != nil {
			return nil, err
		}
		target = p
	}

	vectors, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: a.Config.VectorStore.Provider,
		TargetURL:    target,
		Collection:   a.Config.VectorStore.Collection,
		Dimensions:   a.Config.Embedding.Dimensions,
		Logger:       a.Logger.Named("vector"),
	})
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	a.closers = append(a.closers, vectors.Close)
	return vectors, nil
}

func (a *App) openGraph(embedder embeddings.Embedder) (*graph.Store, error) {
	opts := &graphutils.NewBackendOpts{ProviderType: a.Config.Graph.Provider}
	if pg, ok := a.Storage.(*postgres.Driver); ok {
		opts.Pool = pg.Pool
	}
	backend, err := graphutils.NewBackend(opts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, backend.Close)

	return graph.NewStore(graph.Config{
		Backend:        backend,
		Embedder:       embedder,
		MergeThreshold: a.Config.Graph.MergeThreshold,
		Logger:         a.Logger.Named("graph"),
	})
}

func (a *App) openResources(configDir string) error {
	indexPath := a.Config.Resource.IndexPath
	if a.Config.Resource.Provider == "bleve" && indexPath == "" {
		p, err := a.defaultPath(configDir, resourceIndex)
		if err != nil {
			return err
		}
		indexPath = p
	}

	resources, err := resourceutils.NewDriver(&resourceutils.NewDriverOpts{
		ProviderType: a.Config.Resource.Provider,
		IndexPath:    indexPath,
		Logger:       a.Logger.Named("resource"),
	})
	if err != nil {
		return err
	}
	a.Resources = resources
	a.closers = append(a.closers, resources.Close)
	return nil
}

func (a *App) caller(name string, jsonReply bool) (llm.CallFunc, error) {
	return llmutils.NewCaller(&llmutils.NewCallerOpts{
		Provider: a.Config.LLM.Provider,
		BaseURL:  a.Config.LLM.BaseURL,
		Model:    a.Config.LLM.Model,
		APIKey:   a.Config.LLM.APIKey,
		JSON:     jsonReply,
		Name:     name,
		Logger:   a.Logger,
	})
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
