package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 是应用配置的根结构体
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Model     ModelConfig     `mapstructure:"model" yaml:"model"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" yaml:"knowledge"`
	Fallback  FallbackConfig  `mapstructure:"fallback" yaml:"fallback"`
	Assistant AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig selects the session backend.
// Driver "sqlite" keeps sessions in the kv_store table of Path;
// driver "file" keeps one JSON file per key under Dir.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

// ModelConfig describes the OpenAI-compatible chat completion endpoint.
type ModelConfig struct {
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Name            string        `mapstructure:"name" yaml:"name"`
	ContextTokens   int           `mapstructure:"context_tokens" yaml:"context_tokens"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retry           RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// RetryConfig 重试策略配置
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
}

// HistoryConfig bounds the stored dialogue.
type HistoryConfig struct {
	Window           int `mapstructure:"window" yaml:"window"`
	ReserveTokens    int `mapstructure:"reserve_tokens" yaml:"reserve_tokens"`
	SummaryAttempts  int `mapstructure:"summary_attempts" yaml:"summary_attempts"`
	SummaryMaxTokens int `mapstructure:"summary_max_tokens" yaml:"summary_max_tokens"`
}

// RetrievalConfig controls knowledge lookups made before each model call.
type RetrievalConfig struct {
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
	TopK            int     `mapstructure:"top_k" yaml:"top_k"`
	MinScore        float64 `mapstructure:"min_score" yaml:"min_score"`
	MaxContextChars int     `mapstructure:"max_context_chars" yaml:"max_context_chars"`
	MaxPassageChars int     `mapstructure:"max_passage_chars" yaml:"max_passage_chars"`
}

// KnowledgeConfig 知识库配置
type KnowledgeConfig struct {
	DocsDir        string `mapstructure:"docs_dir" yaml:"docs_dir"`
	Watch          bool   `mapstructure:"watch" yaml:"watch"`
	ResyncSchedule string `mapstructure:"resync_schedule" yaml:"resync_schedule"`
	ChunkChars     int    `mapstructure:"chunk_chars" yaml:"chunk_chars"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
}

// FallbackConfig 外部搜索确认配置
type FallbackConfig struct {
	MaxUnrecognized int `mapstructure:"max_unrecognized" yaml:"max_unrecognized"`
}

// AssistantConfig 助手行为配置
type AssistantConfig struct {
	Name         string        `mapstructure:"name" yaml:"name"`
	SystemPrompt string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	AllowUsers   []string      `mapstructure:"allow_users" yaml:"allow_users"`
	Triggers     []string      `mapstructure:"triggers" yaml:"triggers"`
	TurnTimeout  time.Duration `mapstructure:"turn_timeout" yaml:"turn_timeout"`
	ReplyLimit   int           `mapstructure:"reply_limit" yaml:"reply_limit"`
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	Port      int             `mapstructure:"port" yaml:"port"`
	Host      string          `mapstructure:"host" yaml:"host"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("PAWBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the config file path of the last Load call.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get 获取任意配置键值
func Get(key string) any {
	return viper.Get(key)
}

// Set 设置配置值并持久化
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save 保存配置到文件
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save 内部保存函数，调用者需要持有锁
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file may carry the model API key
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo 保存配置到指定路径
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset 重置配置（主要用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
