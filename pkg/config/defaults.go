package config

const (
	defaultStorageDriver = "sqlite"
	defaultAPIListen     = ":8090"

	defaultOllamaTarget = "http://localhost:11434"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "sensei_episodic"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultLLMProvider = "ollama"
	defaultLLMModel    = "llama3.2"

	defaultApertureTimeout  = "5s"
	defaultMemoryLimit      = 5
	defaultArtifactLimit    = 5
	defaultCloseThreshold   = 10
	defaultRawBuffer        = 6
	defaultChunkWords       = 3000
	defaultTokenBudget      = 6000
	defaultMaxDepth         = 3
	defaultSummarySchedule  = "*/15 * * * *"
	defaultQueueBackend     = "local"
	defaultQueueStream      = "sensei.tasks"
	defaultQueueGroup       = "sensei-workers"
	defaultQueueWorkers     = 4
	defaultResourceProvider = "bleve"
	defaultGraphProvider    = "inmemory"
	defaultMergeThreshold   = 0.85
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			BaseURL:  defaultOllamaTarget,
			Model:    defaultLLMModel,
		},
		Aperture: ApertureConfig{
			Timeout:       defaultApertureTimeout,
			MemoryLimit:   defaultMemoryLimit,
			ArtifactLimit: defaultArtifactLimit,
		},
		Episode: EpisodeConfig{
			CloseThreshold: defaultCloseThreshold,
		},
		Summarizer: SummarizerConfig{
			RawBuffer:   defaultRawBuffer,
			ChunkWords:  defaultChunkWords,
			TokenBudget: defaultTokenBudget,
			MaxDepth:    defaultMaxDepth,
			Schedule:    defaultSummarySchedule,
		},
		Queue: QueueConfig{
			Backend: defaultQueueBackend,
			Stream:  defaultQueueStream,
			Group:   defaultQueueGroup,
			Workers: defaultQueueWorkers,
		},
		Resource: ResourceConfig{
			Provider: defaultResourceProvider,
		},
		Graph: GraphConfig{
			Provider:       defaultGraphProvider,
			MergeThreshold: defaultMergeThreshold,
		},
	}
}
