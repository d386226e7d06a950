// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

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
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	TMDB          TMDBConfig          `mapstructure:"tmdb"`
	Wikipedia     WikipediaConfig     `mapstructure:"wikipedia"`
	Chat          ChatConfig          `mapstructure:"chat"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	// FrontendURL 是允许前端访问本服务的公网地址。
	FrontendURL string `mapstructure:"frontend_url"`
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

// JWTConfig 存储会话令牌相关的配置。
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	SessionExpireHours int    `mapstructure:"session_expire_hours"`
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
	Enabled bool   `mapstructure:"enabled"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	Enabled   bool   `mapstructure:"enabled"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Enabled         bool   `mapstructure:"enabled"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// TMDBConfig 存储结构化电影数据源（TMDb）的配置。
type TMDBConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	ImageBaseURL string `mapstructure:"image_base_url"`
	DetailURL    string `mapstructure:"detail_url"`
}

// WikipediaConfig 存储文本百科数据源的配置。
type WikipediaConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// ChatConfig 存储问答编排管线的调优参数。
type ChatConfig struct {
	// HistoryWindow 是提供给模型的最近轮次数上限。
	HistoryWindow int `mapstructure:"history_window"`
	// SourceTimeoutSeconds 是单个数据源适配器的独立超时。
	SourceTimeoutSeconds int `mapstructure:"source_timeout_seconds"`
	// MaxKeywords 是文本源检索关键词的上限。
	MaxKeywords int `mapstructure:"max_keywords"`
	// ExtractSentences 是文章正文抓取的句子窗口。精度/召回的折中，可调参数而非硬限制。
	ExtractSentences int `mapstructure:"extract_sentences"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的调优参数填入默认值。
func applyDefaults() {
	if Conf.Chat.HistoryWindow <= 0 {
		Conf.Chat.HistoryWindow = 12
	}
	if Conf.Chat.SourceTimeoutSeconds <= 0 {
		Conf.Chat.SourceTimeoutSeconds = 10
	}
	if Conf.Chat.MaxKeywords <= 0 {
		Conf.Chat.MaxKeywords = 3
	}
	if Conf.Chat.ExtractSentences <= 0 {
		Conf.Chat.ExtractSentences = 20
	}
	if Conf.LLM.TimeoutSeconds <= 0 {
		Conf.LLM.TimeoutSeconds = 60
	}
}
