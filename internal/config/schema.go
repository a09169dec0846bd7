// Package config loads SmartKB configuration from defaults, an optional YAML
// file, an optional .env file and SMARTKB_* environment variables.
package config

import "time"

// Config represents the full SmartKB configuration
type Config struct {
	// Root directory for task files, summaries, histories and databases
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// Username of the built-in administrator
	AdminUser string `yaml:"admin_user" mapstructure:"admin_user"`

	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Embedding    EmbeddingConfig    `yaml:"embedding" mapstructure:"embedding"`
	Rerank       RerankConfig       `yaml:"rerank" mapstructure:"rerank"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	RequestLimit RequestLimitConfig `yaml:"request_limit" mapstructure:"request_limit"`
	SummaryCache SummaryCacheConfig `yaml:"summary_cache" mapstructure:"summary_cache"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// ServerConfig configures the HTTP server and its admission control
type ServerConfig struct {
	Addr          string `yaml:"addr" mapstructure:"addr"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxQueue      int    `yaml:"max_queue" mapstructure:"max_queue"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint
type LLMConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// EmbeddingConfig configures the local Ollama embedding service
type EmbeddingConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Model string `yaml:"model" mapstructure:"model"`
}

// RerankConfig configures the cross-encoder rerank service
type RerankConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RetrievalConfig configures the retrieval pipeline
type RetrievalConfig struct {
	DBPath       string        `yaml:"db_path" mapstructure:"db_path"`
	TopK         int           `yaml:"top_k" mapstructure:"top_k"`
	Window       int           `yaml:"window" mapstructure:"window"`
	Alpha        float64       `yaml:"alpha" mapstructure:"alpha"`
	TokenLimit   int           `yaml:"token_limit" mapstructure:"token_limit"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxChunkSize int           `yaml:"max_chunk_size" mapstructure:"max_chunk_size"`
}

// RequestLimitConfig configures the per-IP daily request limit
type RequestLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Daily   int  `yaml:"daily" mapstructure:"daily"`
}

// SummaryCacheConfig configures the attachment summary cache
type SummaryCacheConfig struct {
	Size int `yaml:"size" mapstructure:"size"`
}
