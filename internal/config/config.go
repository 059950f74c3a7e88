package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentSubmitted string `mapstructure:"payment_submitted"`
	PaymentResult    string `mapstructure:"payment_result"`
	ReceiptReady     string `mapstructure:"receipt_ready"`
}

type BusinessConfig struct {
	ReceiptPrefix      string `mapstructure:"receipt_prefix"`       // 收据编号前缀，如 MTA
	ArtifactDir        string `mapstructure:"artifact_dir"`         // 收据文件存放目录
	MaxRetryCount      int    `mapstructure:"max_retry_count"`      // 乐观锁冲突 / 消息投递最大重试次数
	AuditRetentionDays int    `mapstructure:"audit_retention_days"` // 审计日志保留天数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// Default 返回一份内置默认配置（测试场景使用）
func Default() *Config {
	return &Config{
		Business: BusinessConfig{
			ReceiptPrefix:      "MTA",
			ArtifactDir:        "receipts",
			MaxRetryCount:      3,
			AuditRetentionDays: 365,
		},
		Kafka: KafkaConfig{
			Topic: KafkaTopicConfig{
				PaymentSubmitted: "rentledger.payment.submitted",
				PaymentResult:    "rentledger.payment.result",
				ReceiptReady:     "rentledger.receipt.ready",
			},
		},
	}
}
