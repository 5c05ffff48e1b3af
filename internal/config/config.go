package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names a supported LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

type BrowserBackend string

const (
	BackendPlaywright BrowserBackend = "playwright"
	BackendCDP        BrowserBackend = "cdp"
)

const envPrefix = "INFERENCE"

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Inference InferenceConfig `mapstructure:"inference"`
	Browser   BrowserConfig   `mapstructure:"browser"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

type LLMConfig struct {
	Provider   Provider      `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`

	// Sampling policy shared by every operation.
	Temperature      float32 `mapstructure:"temperature"`
	TopP             float32 `mapstructure:"top_p"`
	FrequencyPenalty float32 `mapstructure:"frequency_penalty"`
	PresencePenalty  float32 `mapstructure:"presence_penalty"`

	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RateLimitRetries  int           `mapstructure:"rate_limit_retries"`
	RateLimitBackoff  time.Duration `mapstructure:"rate_limit_backoff"`
}

type InferenceConfig struct {
	Act ActConfig `mapstructure:"act"`
}

// ActConfig controls how the action resolver retries when the model
// selects no function.
type ActConfig struct {
	MaxRetries          int  `mapstructure:"max_retries"`
	RetryWithScreenshot bool `mapstructure:"retry_with_screenshot"`
	RetryWithVariables  bool `mapstructure:"retry_with_variables"`
}

type BrowserConfig struct {
	Backend           BrowserBackend `mapstructure:"backend"`
	Headless          bool           `mapstructure:"headless"`
	RemoteURL         string         `mapstructure:"remote_url"`
	UserDataDir       string         `mapstructure:"user_data_dir"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout"`
	ChunkSize         int            `mapstructure:"chunk_size"`
	ScreenshotQuality int            `mapstructure:"screenshot_quality"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "inference-cli")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.top_p", 1)
	v.SetDefault("llm.frequency_penalty", 0)
	v.SetDefault("llm.presence_penalty", 0)
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("llm.rate_limit_retries", 0)
	v.SetDefault("llm.rate_limit_backoff", "3s")

	// -- Inference --
	v.SetDefault("inference.act.max_retries", 2)
	v.SetDefault("inference.act.retry_with_screenshot", false)
	v.SetDefault("inference.act.retry_with_variables", false)

	// -- Browser --
	v.SetDefault("browser.backend", string(BackendPlaywright))
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.user_data_dir", ".playwright_data")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.chunk_size", 12000)
	v.SetDefault("browser.screenshot_quality", 70)
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads path (optional), INFERENCE_* environment variables and the
// provider API key variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return NewConfigFromViper(v)
}

func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(v, cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func providerKey(v *viper.Viper, p Provider) string {
	switch p {
	case ProviderOpenAI:
		_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
		return v.GetString("openai_api_key")
	case ProviderGemini:
		_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
		return v.GetString("gemini_api_key")
	}
	return ""
}

// Validate checks the configuration for required fields and sane values.
// A missing API key is not an error here; the client constructors report it.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.TopP <= 0 || c.LLM.TopP > 1 {
		return fmt.Errorf("llm.top_p must be within (0, 1], got %v", c.LLM.TopP)
	}
	if c.LLM.RateLimitRetries < 0 {
		return errors.New("llm.rate_limit_retries must not be negative")
	}
	if c.Inference.Act.MaxRetries < 0 {
		return errors.New("inference.act.max_retries must not be negative")
	}
	switch c.Browser.Backend {
	case BackendPlaywright:
	case BackendCDP:
		if c.Browser.RemoteURL == "" {
			return errors.New("browser.remote_url is required for the cdp backend")
		}
	default:
		return fmt.Errorf("browser.backend %q is not supported", c.Browser.Backend)
	}
	if c.Browser.ChunkSize <= 0 {
		return errors.New("browser.chunk_size must be a positive integer")
	}
	return nil
}
