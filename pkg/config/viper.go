package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/sensei/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the sensei.toml file
// (if found via dotdir resolution), and binds environment variables
// with the SENSEI_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SENSEI_API_LISTEN, SENSEI_STORAGE_DRIVER, etc.)
//  3. sensei.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("sensei")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("SENSEI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	for key, info := range configKeys {
		v.SetDefault(key, info.get(d))
	}

	// Typed defaults so GetUint / GetFloat64 / GetBool never see "".
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("aperture.partial_on_timeout", d.Aperture.PartialOnTimeout)
	v.SetDefault("aperture.memory_limit", d.Aperture.MemoryLimit)
	v.SetDefault("aperture.artifact_limit", d.Aperture.ArtifactLimit)
	v.SetDefault("episode.close_threshold", d.Episode.CloseThreshold)
	v.SetDefault("summarizer.raw_buffer", d.Summarizer.RawBuffer)
	v.SetDefault("summarizer.chunk_words", d.Summarizer.ChunkWords)
	v.SetDefault("summarizer.token_budget", d.Summarizer.TokenBudget)
	v.SetDefault("summarizer.max_depth", d.Summarizer.MaxDepth)
	v.SetDefault("queue.workers", d.Queue.Workers)
	v.SetDefault("graph.merge_threshold", d.Graph.MergeThreshold)

	// Secrets are env-only.
	v.SetDefault("llm.api_key", "")
}

// FromViper materializes a Config from the resolved viper precedence chain.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			Collection: v.GetString("vector_store.collection"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		LLM: LLMConfig{
			Provider: v.GetString("llm.provider"),
			BaseURL:  v.GetString("llm.base_url"),
			Model:    v.GetString("llm.model"),
			APIKey:   v.GetString("llm.api_key"),
		},
		Policy: PolicyConfig{
			ManifestPath:   v.GetString("policy.manifest_path"),
			GovernancePath: v.GetString("policy.governance_path"),
		},
		Aperture: ApertureConfig{
			Timeout:          v.GetString("aperture.timeout"),
			PartialOnTimeout: v.GetBool("aperture.partial_on_timeout"),
			MemoryLimit:      v.GetInt("aperture.memory_limit"),
			ArtifactLimit:    v.GetInt("aperture.artifact_limit"),
		},
		Episode: EpisodeConfig{
			CloseThreshold: v.GetInt("episode.close_threshold"),
		},
		Summarizer: SummarizerConfig{
			RawBuffer:   v.GetInt("summarizer.raw_buffer"),
			ChunkWords:  v.GetInt("summarizer.chunk_words"),
			TokenBudget: v.GetInt("summarizer.token_budget"),
			MaxDepth:    v.GetInt("summarizer.max_depth"),
			Schedule:    v.GetString("summarizer.schedule"),
		},
		Queue: QueueConfig{
			Backend: v.GetString("queue.backend"),
			Target:  v.GetString("queue.target"),
			Stream:  v.GetString("queue.stream"),
			Group:   v.GetString("queue.group"),
			Workers: v.GetUint("queue.workers"),
		},
		Resource: ResourceConfig{
			Provider:  v.GetString("resource.provider"),
			IndexPath: v.GetString("resource.index_path"),
		},
		Graph: GraphConfig{
			Provider:       v.GetString("graph.provider"),
			MergeThreshold: v.GetFloat64("graph.merge_threshold"),
		},
	}
}
