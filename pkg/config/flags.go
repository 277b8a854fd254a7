package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagAPIListen       = "api-listen"
	FlagStorageDriver   = "storage-driver"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagLLMProvider     = "llm-provider"
	FlagLLMBaseURL      = "llm-base-url"
	FlagLLMModel        = "llm-model"
	FlagManifest        = "manifest"
	FlagGovernance      = "governance"
	FlagQueueBackend    = "queue-backend"
	FlagQueueTarget     = "queue-target"
	FlagQueueWorkers    = "queue-workers"
	FlagResourceIndex   = "resource-index"
	FlagApertureTimeout = "aperture-timeout"
)

// ServeFlags is the registry used by "sensei serve" and the commands
// that share its storage and model wiring.
var ServeFlags = FlagSet{
	FlagAPIListen:       {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the operator API to listen on"},
	FlagStorageDriver:   {Name: "storage-driver", ViperKey: "storage.driver", Description: "Storage driver (sqlite, postgres, inmemory)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite, qdrant, inmemory)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store target (file path or host:port)"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding vector dimensions"},
	FlagLLMProvider:     {Name: "llm-provider", ViperKey: "llm.provider", Description: "Model provider for classification and summarization (ollama, openai, anthropic)"},
	FlagLLMBaseURL:      {Name: "llm-base-url", ViperKey: "llm.base_url", Description: "Model provider base URL"},
	FlagLLMModel:        {Name: "llm-model", ViperKey: "llm.model", Description: "Model name"},
	FlagManifest:        {Name: "manifest", ViperKey: "policy.manifest_path", Description: "Path to the capability manifest YAML"},
	FlagGovernance:      {Name: "governance", ViperKey: "policy.governance_path", Description: "Path to the governance rules YAML"},
	FlagQueueBackend:    {Name: "queue-backend", ViperKey: "queue.backend", Description: "Work queue backend (local, redis, kafka, nop)"},
	FlagQueueTarget:     {Name: "queue-target", ViperKey: "queue.target", Description: "Work queue address (redis URL or kafka brokers)"},
	FlagQueueWorkers:    {Name: "queue-workers", ViperKey: "queue.workers", Description: "Number of background workers"},
	FlagResourceIndex:   {Name: "resource-index", ViperKey: "resource.index_path", Description: "Path to the resource search index"},
	FlagApertureTimeout: {Name: "aperture-timeout", ViperKey: "aperture.timeout", Description: "Context assembly deadline (e.g. 5s)"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
