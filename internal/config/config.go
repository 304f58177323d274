// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	LLMFallback   LLMFallbackConfig   `mapstructure:"llm_fallback"`
	Compiler      CompilerConfig      `mapstructure:"compiler"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Repair        RepairConfig        `mapstructure:"repair"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 只用于校验外部签发的 token。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Dimensions  int     `mapstructure:"dimensions"`
	Concurrency int     `mapstructure:"concurrency"`
	RateLimit   float64 `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限速
}

// LLMConfig 存储主用大语言模型（OpenAI 兼容接口）的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMFallbackConfig 存储限流时使用的备用模型（Anthropic）配置，APIKey 为空表示不启用。
type LLMFallbackConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// CompilerConfig 存储 LaTeX 编译服务的配置。
type CompilerConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PipelineConfig 存储文档切块相关的配置。
type PipelineConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// RetrievalConfig 存储上下文检索相关的配置。
type RetrievalConfig struct {
	TopK          int `mapstructure:"top_k"`
	RecentDocs    int `mapstructure:"recent_docs"`
	MinProfileLen int `mapstructure:"min_profile_len"`
}

// RepairConfig 存储编译-修复循环的配置。
type RepairConfig struct {
	Debounce         time.Duration `mapstructure:"debounce"`
	MaxAutoRepairs   int           `mapstructure:"max_auto_repairs"`
	MaxDiagnosticLen int           `mapstructure:"max_diagnostic_len"`
	IdleTTL          time.Duration `mapstructure:"idle_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "document-ingest")
	v.SetDefault("kafka.group_id", "resume-forge-ingest")
	v.SetDefault("tika.timeout", 60*time.Second)
	v.SetDefault("elasticsearch.index_name", "document_chunks")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm_fallback.model", "claude-3-7-sonnet-latest")
	v.SetDefault("llm_fallback.max_tokens", 4096)
	v.SetDefault("compiler.timeout", 90*time.Second)
	v.SetDefault("pipeline.chunk_size", 500)
	v.SetDefault("pipeline.chunk_overlap", 100)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.recent_docs", 5)
	v.SetDefault("retrieval.min_profile_len", 50)
	v.SetDefault("repair.debounce", 1500*time.Millisecond)
	v.SetDefault("repair.max_auto_repairs", 1)
	v.SetDefault("repair.max_diagnostic_len", 1500)
	v.SetDefault("repair.idle_ttl", 30*time.Minute)
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量 RF_<SECTION>_<KEY> 可以覆盖文件中的值，例如 RF_LLM_API_KEY。
func Init(configPath string) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := v.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
