package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	News       NewsConfig       `mapstructure:"news"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxMessageLen  int           `mapstructure:"max_message_len"`
	RequireSession bool          `mapstructure:"require_session"`
}

type LLMConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	IntentTimeout     time.Duration `mapstructure:"intent_timeout"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float64       `mapstructure:"temperature"`
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	IntentTTL     time.Duration `mapstructure:"intent_ttl"`
	ResponseTTL   time.Duration `mapstructure:"response_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	QuotaMarkers     []string      `mapstructure:"quota_markers"`
}

type AnalyzerConfig struct {
	PythonBin  string        `mapstructure:"python_bin"`
	ScriptsDir string        `mapstructure:"scripts_dir"`
	ModelsDir  string        `mapstructure:"models_dir"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Method     string        `mapstructure:"method"`
}

type RetrievalConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	MaxDocs   int     `mapstructure:"max_docs"`
}

type NewsConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	setDefaults()

	// Environment variable overrides
	viper.BindEnv("llm.base_url", "OLLAMA_URL")
	viper.BindEnv("llm.model", "OLLAMA_MODEL")
	viper.BindEnv("news.api_key", "NEWS_API_KEY")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.redis.db", "REDIS_DB")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Redis address assembled from host/port env vars when present
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := viper.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.max_message_len", 2000)
	viper.SetDefault("server.require_session", true)

	viper.SetDefault("llm.base_url", "http://localhost:11434")
	viper.SetDefault("llm.model", "llama3")
	viper.SetDefault("llm.intent_timeout", 5*time.Second)
	viper.SetDefault("llm.generation_timeout", 15*time.Second)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.temperature", 0.7)

	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.intent_ttl", 5*time.Minute)
	viper.SetDefault("cache.response_ttl", 10*time.Minute)
	viper.SetDefault("cache.sweep_interval", 5*time.Minute)

	viper.SetDefault("breaker.failure_threshold", 2)
	viper.SetDefault("breaker.reset_timeout", 30*time.Minute)
	viper.SetDefault("breaker.quota_markers", []string{"429", "quota", "RESOURCE_EXHAUSTED"})

	viper.SetDefault("analyzer.python_bin", "python3")
	viper.SetDefault("analyzer.scripts_dir", "ai_scripts")
	viper.SetDefault("analyzer.models_dir", "ai_models")
	viper.SetDefault("analyzer.timeout", 20*time.Second)
	viper.SetDefault("analyzer.method", "textblob")

	viper.SetDefault("retrieval.threshold", 0.1)
	viper.SetDefault("retrieval.max_docs", 5)

	viper.SetDefault("news.base_url", "https://newsapi.org/v2")
	viper.SetDefault("news.timeout", 10*time.Second)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_minute", 30)
	viper.SetDefault("rate_limit.burst", 5)

	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en", "vi", "zh"})
	viper.SetDefault("i18n.directory", "configs/i18n")
}

func validateConfig(cfg *Config) error {
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker failure_threshold must be at least 1")
	}
	return nil
}
