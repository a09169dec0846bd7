package config

import "time"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "data",
		AdminUser: "root",
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:          ":7860",
			MaxConcurrent: 4,
			MaxQueue:      40,
		},
		LLM: LLMConfig{
			BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:   "qwen3-max",
		},
		Embedding: EmbeddingConfig{
			URL:   "http://localhost:11434",
			Model: "bge-large-zh",
		},
		Rerank: RerankConfig{
			URL:     "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank",
			Model:   "qwen3-rerank",
			Timeout: 15 * time.Second,
		},
		Retrieval: RetrievalConfig{
			DBPath:       "kb.db",
			TopK:         10,
			Window:       5,
			Alpha:        0.3,
			TokenLimit:   8000,
			Timeout:      30 * time.Second,
			MaxChunkSize: 1500,
		},
		RequestLimit: RequestLimitConfig{
			Enabled: false,
			Daily:   50,
		},
		SummaryCache: SummaryCacheConfig{
			Size: 128,
		},
	}
}
