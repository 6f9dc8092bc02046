// Package config loads the vector database's configuration: defaults,
// then an optional project-local YAML file, then environment variable
// overrides, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Data       DataConfig       `yaml:"data" json:"data"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
}

// DataConfig configures where the repository persists to disk.
type DataConfig struct {
	// Dir is the directory holding the snapshot and WAL files.
	Dir string `yaml:"dir" json:"dir"`
	// SnapshotThresholdBytes is a WAL size in bytes. It is loaded and
	// overridable like the other fields, but nothing in the server reads it:
	// the WAL is compacted only by an explicit snapshot.
	SnapshotThresholdBytes int64 `yaml:"snapshot_threshold_bytes" json:"snapshot_threshold_bytes"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogJSON  bool   `yaml:"log_json" json:"log_json"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend. Only "stub" (deterministic,
	// hash-seeded) is wired today; the field exists so a real provider can
	// be dropped in without changing the config schema.
	Provider string `yaml:"provider" json:"provider"`
	Dim      int    `yaml:"dim" json:"dim"`
}

// IndexingConfig configures the search service's ephemeral flat-index
// cache. The index-build fields are loaded and validated, but builds take
// their defaults from indexing.DefaultBuildParams, not from here.
type IndexingConfig struct {
	DefaultAlgo          string  `yaml:"default_algo" json:"default_algo"`
	Trees                int     `yaml:"trees" json:"trees"`
	LeafSize             int     `yaml:"leaf_size" json:"leaf_size"`
	Seed                 int64   `yaml:"seed" json:"seed"`
	CandidateMult        float64 `yaml:"candidate_mult" json:"candidate_mult"`
	EphemeralCacheSize   int     `yaml:"ephemeral_cache_size" json:"ephemeral_cache_size"`
}

const configFileName = ".vectordb.yaml"

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Data: DataConfig{
			Dir:                    "./data",
			SnapshotThresholdBytes: 8 << 20, // 8 MiB
		},
		Server: ServerConfig{
			Addr:     ":8080",
			LogLevel: "info",
			LogJSON:  false,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "stub",
			Dim:      384,
		},
		Indexing: IndexingConfig{
			DefaultAlgo:        "flat",
			Trees:              8,
			LeafSize:           64,
			Seed:               42,
			CandidateMult:      2.0,
			EphemeralCacheSize: 64,
		},
	}
}

// Load builds a Config from defaults, an optional dir/.vectordb.yaml, and
// DATA_DIR/VECTORDB_* environment overrides, then validates the result.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays every non-zero field of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Data.Dir != "" {
		c.Data.Dir = other.Data.Dir
	}
	if other.Data.SnapshotThresholdBytes != 0 {
		c.Data.SnapshotThresholdBytes = other.Data.SnapshotThresholdBytes
	}
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogJSON {
		c.Server.LogJSON = other.Server.LogJSON
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Dim != 0 {
		c.Embeddings.Dim = other.Embeddings.Dim
	}
	if other.Indexing.DefaultAlgo != "" {
		c.Indexing.DefaultAlgo = other.Indexing.DefaultAlgo
	}
	if other.Indexing.Trees != 0 {
		c.Indexing.Trees = other.Indexing.Trees
	}
	if other.Indexing.LeafSize != 0 {
		c.Indexing.LeafSize = other.Indexing.LeafSize
	}
	if other.Indexing.Seed != 0 {
		c.Indexing.Seed = other.Indexing.Seed
	}
	if other.Indexing.CandidateMult != 0 {
		c.Indexing.CandidateMult = other.Indexing.CandidateMult
	}
	if other.Indexing.EphemeralCacheSize != 0 {
		c.Indexing.EphemeralCacheSize = other.Indexing.EphemeralCacheSize
	}
}

// applyEnvOverrides applies DATA_DIR and the VECTORDB_* environment
// variables, which take precedence over both defaults and the project
// config file. VECTORDB_DATA_DIR wins over DATA_DIR when both are set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("VECTORDB_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("VECTORDB_SNAPSHOT_THRESHOLD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			c.Data.SnapshotThresholdBytes = n
		}
	}
	if v := os.Getenv("VECTORDB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("VECTORDB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("VECTORDB_LOG_JSON"); v != "" {
		c.Server.LogJSON = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("VECTORDB_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VECTORDB_EMBEDDINGS_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dim = n
		}
	}
	if v := os.Getenv("VECTORDB_INDEX_ALGO"); v != "" {
		c.Indexing.DefaultAlgo = v
	}
}

// Validate rejects configurations that would otherwise fail confusingly
// deep inside a service.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must not be empty")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Embeddings.Dim <= 0 {
		return fmt.Errorf("embeddings.dim must be positive, got %d", c.Embeddings.Dim)
	}
	switch c.Indexing.DefaultAlgo {
	case "flat", "rp":
	default:
		return fmt.Errorf("indexing.default_algo must be \"flat\" or \"rp\", got %q", c.Indexing.DefaultAlgo)
	}
	if c.Indexing.Trees <= 0 {
		return fmt.Errorf("indexing.trees must be positive, got %d", c.Indexing.Trees)
	}
	if c.Indexing.LeafSize <= 0 {
		return fmt.Errorf("indexing.leaf_size must be positive, got %d", c.Indexing.LeafSize)
	}
	return nil
}

// WriteYAML writes c to path, for `vectordb config init`-style bootstrapping.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
