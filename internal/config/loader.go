package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. SMARTKB_LLM_MODEL.
const EnvPrefix = "SMARTKB"

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty and present), then the .env file at envPath (if present), then
// environment variables. The DashScope key is also accepted as
// DASHSCOPE_API_KEY for both the chat and rerank endpoints.
func Load(path, envPath string) (*Config, error) {
	cfg := DefaultConfig()

	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("loading %s: %w", envPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", envPath, err)
		}
	}

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "DASHSCOPE_API_KEY", "dashscope_api_key")
	_ = v.BindEnv("rerank.api_key", EnvPrefix+"_RERANK_API_KEY", "DASHSCOPE_API_KEY", "dashscope_api_key")

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("admin_user", cfg.AdminUser)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.max_concurrent", cfg.Server.MaxConcurrent)
	v.SetDefault("server.max_queue", cfg.Server.MaxQueue)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("embedding.url", cfg.Embedding.URL)
	v.SetDefault("embedding.model", cfg.Embedding.Model)
	v.SetDefault("rerank.url", cfg.Rerank.URL)
	v.SetDefault("rerank.api_key", cfg.Rerank.APIKey)
	v.SetDefault("rerank.model", cfg.Rerank.Model)
	v.SetDefault("rerank.timeout", cfg.Rerank.Timeout)
	v.SetDefault("retrieval.db_path", cfg.Retrieval.DBPath)
	v.SetDefault("retrieval.top_k", cfg.Retrieval.TopK)
	v.SetDefault("retrieval.window", cfg.Retrieval.Window)
	v.SetDefault("retrieval.alpha", cfg.Retrieval.Alpha)
	v.SetDefault("retrieval.token_limit", cfg.Retrieval.TokenLimit)
	v.SetDefault("retrieval.timeout", cfg.Retrieval.Timeout)
	v.SetDefault("retrieval.max_chunk_size", cfg.Retrieval.MaxChunkSize)
	v.SetDefault("request_limit.enabled", cfg.RequestLimit.Enabled)
	v.SetDefault("request_limit.daily", cfg.RequestLimit.Daily)
	v.SetDefault("summary_cache.size", cfg.SummaryCache.Size)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Window <= 0 || c.Retrieval.Window > c.Retrieval.TopK {
		errs = append(errs, fmt.Errorf("retrieval.window must be in 1..top_k, got %d", c.Retrieval.Window))
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		errs = append(errs, fmt.Errorf("retrieval.alpha must be in [0,1], got %v", c.Retrieval.Alpha))
	}
	if c.Retrieval.TokenLimit <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.token_limit must be positive, got %d", c.Retrieval.TokenLimit))
	}
	if c.Server.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent))
	}
	if c.Server.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("server.max_queue must not be negative, got %d", c.Server.MaxQueue))
	}
	if c.RequestLimit.Enabled && c.RequestLimit.Daily <= 0 {
		errs = append(errs, fmt.Errorf("request_limit.daily must be positive, got %d", c.RequestLimit.Daily))
	}
	return errors.Join(errs...)
}

// ResolvePath joins relative paths onto DataDir.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
