package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Chroma   ChromaConfig   `mapstructure:"chroma"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Files    FilesConfig    `mapstructure:"files"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type ChromaConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Tenant         string        `mapstructure:"tenant"`
	Database       string        `mapstructure:"database"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TextCollection string        `mapstructure:"text_collection"`
	ImgCollection  string        `mapstructure:"image_collection"`
}

type LLMConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	SmallModel    string        `mapstructure:"small_model"`
	LargeModel    string        `mapstructure:"large_model"`
	OCRModel      string        `mapstructure:"ocr_model"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxOutputToks int           `mapstructure:"max_output_tokens"`
}

type EmbedConfig struct {
	TextModel  string        `mapstructure:"text_model"`
	TextDim    int           `mapstructure:"text_dim"`
	GatewayURL string        `mapstructure:"gateway_url"`
	ImageDim   int           `mapstructure:"image_dim"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	ChunkSize               int `mapstructure:"chunk_size"`
	ChunkOverlap            int `mapstructure:"chunk_overlap"`
	TopK                    int `mapstructure:"top_k"`
	SolverConcurrency       int `mapstructure:"solver_concurrency"`
	ActionBatchSize         int `mapstructure:"action_batch_size"`
	CleanupAfterHours       int `mapstructure:"cleanup_after_hours"`
	PersonalInstructionsMax int `mapstructure:"personal_instructions_max"`
}

type FilesConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

func Load(configPath string) (*Config, error) {
	config := &Config{}

	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("chroma.host", "localhost")
	viper.SetDefault("chroma.port", 8000)
	viper.SetDefault("chroma.tenant", "default_tenant")
	viper.SetDefault("chroma.database", "default_database")
	viper.SetDefault("chroma.timeout", "30s")
	viper.SetDefault("chroma.text_collection", "easyform_documents")
	viper.SetDefault("chroma.image_collection", "easyform_images")

	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.small_model", "gpt-4o-mini")
	viper.SetDefault("llm.large_model", "gpt-4o")
	viper.SetDefault("llm.ocr_model", "gpt-4o-mini")
	viper.SetDefault("llm.max_retries", 2)
	viper.SetDefault("llm.retry_delay", "2s")
	viper.SetDefault("llm.timeout", "120s")
	viper.SetDefault("llm.max_output_tokens", 8192)

	viper.SetDefault("embed.text_model", "text-embedding-3-small")
	viper.SetDefault("embed.text_dim", 1536)
	viper.SetDefault("embed.gateway_url", "")
	viper.SetDefault("embed.image_dim", 768)
	viper.SetDefault("embed.timeout", "60s")

	viper.SetDefault("pipeline.chunk_size", 1000)
	viper.SetDefault("pipeline.chunk_overlap", 200)
	viper.SetDefault("pipeline.top_k", 10)
	viper.SetDefault("pipeline.solver_concurrency", 10)
	viper.SetDefault("pipeline.action_batch_size", 10)
	viper.SetDefault("pipeline.cleanup_after_hours", 24)
	viper.SetDefault("pipeline.personal_instructions_max", 4000)

	viper.SetDefault("files.max_upload_bytes", int64(200*1024*1024))

	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("debug.dir", "./debug_runs")
}

func bindEnvVars() {
	viper.SetEnvPrefix("EASYFORM")
	viper.AutomaticEnv()

	bindings := map[string]string{
		"server.port":               "EASYFORM_SERVER_PORT",
		"server.host":               "EASYFORM_SERVER_HOST",
		"server.shutdown_timeout":   "EASYFORM_SERVER_SHUTDOWN_TIMEOUT",
		"redis.host":                "EASYFORM_REDIS_HOST",
		"redis.port":                "EASYFORM_REDIS_PORT",
		"redis.password":            "EASYFORM_REDIS_PASSWORD",
		"redis.db":                  "EASYFORM_REDIS_DB",
		"redis.pool_size":           "EASYFORM_REDIS_POOL_SIZE",
		"chroma.host":               "EASYFORM_CHROMA_HOST",
		"chroma.port":               "EASYFORM_CHROMA_PORT",
		"chroma.tenant":             "EASYFORM_CHROMA_TENANT",
		"chroma.database":           "EASYFORM_CHROMA_DATABASE",
		"llm.api_key":               "EASYFORM_LLM_API_KEY",
		"llm.base_url":              "EASYFORM_LLM_BASE_URL",
		"llm.small_model":           "EASYFORM_LLM_SMALL_MODEL",
		"llm.large_model":           "EASYFORM_LLM_LARGE_MODEL",
		"llm.ocr_model":             "EASYFORM_LLM_OCR_MODEL",
		"llm.max_retries":           "EASYFORM_LLM_MAX_RETRIES",
		"llm.retry_delay":           "EASYFORM_LLM_RETRY_DELAY",
		"embed.text_model":          "EASYFORM_EMBED_TEXT_MODEL",
		"embed.text_dim":            "EASYFORM_EMBED_TEXT_DIM",
		"embed.gateway_url":         "EASYFORM_EMBED_GATEWAY_URL",
		"embed.image_dim":           "EASYFORM_EMBED_IMAGE_DIM",
		"pipeline.chunk_size":       "EASYFORM_PIPELINE_CHUNK_SIZE",
		"pipeline.chunk_overlap":    "EASYFORM_PIPELINE_CHUNK_OVERLAP",
		"pipeline.top_k":            "EASYFORM_PIPELINE_TOP_K",
		"files.max_upload_bytes":    "EASYFORM_FILES_MAX_UPLOAD_BYTES",
		"debug.enabled":             "EASYFORM_DEBUG_ENABLED",
		"debug.dir":                 "EASYFORM_DEBUG_DIR",
		"pipeline.cleanup_after_hours": "EASYFORM_PIPELINE_CLEANUP_AFTER_HOURS",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			fmt.Printf("Warning: failed to bind %s env var: %v\n", key, err)
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}

	if c.Chroma.Host == "" {
		return fmt.Errorf("chroma host cannot be empty")
	}

	if c.Chroma.TextCollection == "" || c.Chroma.ImgCollection == "" {
		return fmt.Errorf("chroma collection names cannot be empty")
	}

	if c.LLM.SmallModel == "" || c.LLM.LargeModel == "" {
		return fmt.Errorf("LLM models cannot be empty")
	}

	if c.Embed.TextDim <= 0 {
		return fmt.Errorf("text embedding dimension must be positive: %d", c.Embed.TextDim)
	}

	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", c.Pipeline.ChunkSize)
	}

	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("chunk overlap must be between 0 and chunk size: %d", c.Pipeline.ChunkOverlap)
	}

	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("topK must be positive: %d", c.Pipeline.TopK)
	}

	if c.Pipeline.SolverConcurrency <= 0 {
		return fmt.Errorf("solver concurrency must be positive: %d", c.Pipeline.SolverConcurrency)
	}

	if c.Pipeline.ActionBatchSize <= 0 {
		return fmt.Errorf("action batch size must be positive: %d", c.Pipeline.ActionBatchSize)
	}

	if c.Files.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive: %d", c.Files.MaxUploadBytes)
	}

	return nil
}
