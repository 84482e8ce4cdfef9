package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Session  SessionConfig  `mapstructure:"session"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host          string        `mapstructure:"host"`                                               // 服务器主机
	Port          int           `mapstructure:"port" validate:"min=1,max=65535"`                    // 服务器端口
	Mode          string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"` // gin运行模式
	MaxUploadMB   int           `mapstructure:"max_upload_mb" validate:"min=1"`                     // 上传文件大小上限(MB)
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`                                     // 优雅关闭等待时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"` // 日志级别
	File       string `mapstructure:"file"`                                                         // 日志文件路径，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`                                 // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`                                 // 保留的旧日志文件数量
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`                                // 旧日志保留天数
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider   string        `mapstructure:"provider" validate:"required"`        // 提供商
	Endpoint   string        `mapstructure:"endpoint" validate:"omitempty,url"`   // API端点
	Model      string        `mapstructure:"model" validate:"required"`           // 新会话的默认模型
	Timeout    time.Duration `mapstructure:"timeout"`                             // 请求超时时间
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"` // 最大重试次数
	MaxTokens  int           `mapstructure:"max_tokens" validate:"min=0"`         // 最大生成token数量，0表示不限制
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider" validate:"required"`         // 提供商
	Endpoint   string        `mapstructure:"endpoint" validate:"omitempty,url"`    // API端点
	Model      string        `mapstructure:"model" validate:"required"`            // 模型名称
	Dimensions int           `mapstructure:"dimensions" validate:"min=0"`          // 向量维度，0表示使用模型默认值
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1,max=2048"` // 批处理大小
	Workers    int           `mapstructure:"workers" validate:"min=1"`             // 并行批次数
	Timeout    time.Duration `mapstructure:"timeout"`                              // 请求超时时间
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`  // 最大重试次数
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	Separator    string `mapstructure:"separator" validate:"required"`                     // 切分分隔符
	ChunkSize    int    `mapstructure:"chunk_size" validate:"min=1"`                       // 分块大小
	ChunkOverlap int    `mapstructure:"chunk_overlap" validate:"min=0,ltefield=ChunkSize"` // 分块重叠大小
}

// SearchConfig 检索配置
type SearchConfig struct {
	TopK int `mapstructure:"top_k" validate:"min=1"` // 每次检索的段落数量
}

// VectorDBConfig 向量索引配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=memory faiss"`      // 索引类型
	Distance string `mapstructure:"distance" validate:"oneof=cosine dot l2"` // 距离度量方式
}

// SessionConfig 会话配置
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`              // 会话闲置过期时间
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 过期会话清理间隔
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`                             // 是否启用缓存
	Type     string        `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型
	Address  string        `mapstructure:"address"`                            // Redis地址
	Password string        `mapstructure:"password"`                           // Redis密码
	DB       int           `mapstructure:"db" validate:"min=0"`                // Redis数据库
	TTL      time.Duration `mapstructure:"ttl"`                                // 缓存有效期
	Prefix   string        `mapstructure:"prefix"`                             // 键前缀
}

// StorageConfig 上传文件归档配置
type StorageConfig struct {
	Enable    bool   `mapstructure:"enable"`                            // 是否归档上传的文件
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// DatabaseConfig 会话记录数据库配置
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"`                       // 是否归档会话记录
	Type   string `mapstructure:"type" validate:"oneof=sqlite"` // 数据库类型
	DSN    string `mapstructure:"dsn"`                          // 数据源名称
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	// 设置默认配置路径
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// 找不到配置文件时写出一份默认配置
		logrus.Warnf("Config file not found at %s, using defaults", configPath)
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err == nil {
			if err := v.WriteConfigAs(configPath); err != nil {
				logrus.Warnf("Could not write default config to %s: %v", configPath, err)
			}
		}
	} else {
		logrus.Infof("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，如 SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// processEnvironmentVariables 替换配置中 ${VAR} 形式的环境变量引用
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Cache.Address,
		&cfg.Cache.Password,
		&cfg.Storage.Endpoint,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Database.DSN,
		&cfg.LLM.Endpoint,
		&cfg.Embed.Endpoint,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 展开整个值为 ${VAR} 的配置项，环境变量为空时保留原值
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.shutdown_grace", "10s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// LLM默认配置
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-3.5-turbo")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.max_tokens", 0)

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embed.model", "text-embedding-ada-002")
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.batch_size", 100)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 2)

	// 文档处理默认配置
	v.SetDefault("document.separator", "\n")
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 100)

	// 检索默认配置
	v.SetDefault("search.top_k", 4)

	// 向量索引默认配置
	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.distance", "cosine")

	// 会话默认配置
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.cleanup_interval", "10m")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.prefix", "pdfchat")

	// 上传归档默认配置
	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "pdfchat")
	v.SetDefault("storage.use_ssl", false)

	// 数据库默认配置
	v.SetDefault("database.enable", true)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/pdfchat.db")
}
