package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent sensei configuration stored as sensei.toml
// in the .sensei/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	Policy      PolicyConfig      `toml:"policy"`
	Aperture    ApertureConfig    `toml:"aperture"`
	Episode     EpisodeConfig     `toml:"episode"`
	Summarizer  SummarizerConfig  `toml:"summarizer"`
	Queue       QueueConfig       `toml:"queue"`
	Resource    ResourceConfig    `toml:"resource"`
	Graph       GraphConfig       `toml:"graph"`
}

// StorageConfig selects the message, episode, summary and artifact store.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds operator API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// VectorStoreConfig holds the episodic memory vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds the classification and summarization model settings.
// API keys are never persisted; they come from SENSEI_LLM_API_KEY.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	BaseURL  string `toml:"base_url,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"-"`
}

// PolicyConfig points at the capability manifest and governance files.
// Empty paths select the bundled defaults.
type PolicyConfig struct {
	ManifestPath   string `toml:"manifest_path,omitempty"`
	GovernancePath string `toml:"governance_path,omitempty"`
}

// ApertureConfig holds context assembly settings.
type ApertureConfig struct {
	Timeout          string `toml:"timeout,omitempty"`
	PartialOnTimeout bool   `toml:"partial_on_timeout,omitempty"`
	MemoryLimit      int    `toml:"memory_limit,omitempty"`
	ArtifactLimit    int    `toml:"artifact_limit,omitempty"`
}

// EpisodeConfig holds episode segmentation settings.
type EpisodeConfig struct {
	CloseThreshold int `toml:"close_threshold,omitempty"`
}

// SummarizerConfig holds incremental summarization settings.
type SummarizerConfig struct {
	RawBuffer   int    `toml:"raw_buffer,omitempty"`
	ChunkWords  int    `toml:"chunk_words,omitempty"`
	TokenBudget int    `toml:"token_budget,omitempty"`
	MaxDepth    int    `toml:"max_depth,omitempty"`
	Schedule    string `toml:"schedule,omitempty"`
}

// QueueConfig selects the background work queue backend.
type QueueConfig struct {
	Backend string `toml:"backend,omitempty"`
	Target  string `toml:"target,omitempty"`
	Stream  string `toml:"stream,omitempty"`
	Group   string `toml:"group,omitempty"`
	Workers uint   `toml:"workers,omitempty"`
}

// ResourceConfig holds resource chunk index settings.
type ResourceConfig struct {
	Provider  string `toml:"provider,omitempty"`
	IndexPath string `toml:"index_path,omitempty"`
}

// GraphConfig holds semantic memory graph settings.
type GraphConfig struct {
	Provider       string  `toml:"provider,omitempty"`
	MergeThreshold float64 `toml:"merge_threshold,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"llm.provider": stringKey(func(c *Config) *string { return &c.LLM.Provider }),
	"llm.base_url": stringKey(func(c *Config) *string { return &c.LLM.BaseURL }),
	"llm.model":    stringKey(func(c *Config) *string { return &c.LLM.Model }),

	"policy.manifest_path":   stringKey(func(c *Config) *string { return &c.Policy.ManifestPath }),
	"policy.governance_path": stringKey(func(c *Config) *string { return &c.Policy.GovernancePath }),

	"aperture.timeout": stringKey(func(c *Config) *string { return &c.Aperture.Timeout }),
	"aperture.partial_on_timeout": {
		get: func(c *Config) string { return strconv.FormatBool(c.Aperture.PartialOnTimeout) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for aperture.partial_on_timeout: %w", err)
			}
			c.Aperture.PartialOnTimeout = b
			return nil
		},
	},
	"aperture.memory_limit":   intKey("aperture.memory_limit", func(c *Config) *int { return &c.Aperture.MemoryLimit }),
	"aperture.artifact_limit": intKey("aperture.artifact_limit", func(c *Config) *int { return &c.Aperture.ArtifactLimit }),

	"episode.close_threshold": intKey("episode.close_threshold", func(c *Config) *int { return &c.Episode.CloseThreshold }),

	"summarizer.raw_buffer":   intKey("summarizer.raw_buffer", func(c *Config) *int { return &c.Summarizer.RawBuffer }),
	"summarizer.chunk_words":  intKey("summarizer.chunk_words", func(c *Config) *int { return &c.Summarizer.ChunkWords }),
	"summarizer.token_budget": intKey("summarizer.token_budget", func(c *Config) *int { return &c.Summarizer.TokenBudget }),
	"summarizer.max_depth":    intKey("summarizer.max_depth", func(c *Config) *int { return &c.Summarizer.MaxDepth }),
	"summarizer.schedule":     stringKey(func(c *Config) *string { return &c.Summarizer.Schedule }),

	"queue.backend": stringKey(func(c *Config) *string { return &c.Queue.Backend }),
	"queue.target":  stringKey(func(c *Config) *string { return &c.Queue.Target }),
	"queue.stream":  stringKey(func(c *Config) *string { return &c.Queue.Stream }),
	"queue.group":   stringKey(func(c *Config) *string { return &c.Queue.Group }),
	"queue.workers": uintKey("queue.workers", func(c *Config) *uint { return &c.Queue.Workers }),

	"resource.provider":   stringKey(func(c *Config) *string { return &c.Resource.Provider }),
	"resource.index_path": stringKey(func(c *Config) *string { return &c.Resource.IndexPath }),

	"graph.provider": stringKey(func(c *Config) *string { return &c.Graph.Provider }),
	"graph.merge_threshold": {
		get: func(c *Config) string {
			if c.Graph.MergeThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Graph.MergeThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for graph.merge_threshold: %w", err)
			}
			c.Graph.MergeThreshold = f
			return nil
		},
	},
}
