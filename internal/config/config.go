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
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Consistency ConsistencyConfig `mapstructure:"consistency"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port" validate:"required,numeric"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret" validate:"required,min=16"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours" validate:"gt=0"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
// Topic 用于发布检查/修复事件，TaskTopic 用于接收异步检查任务；Brokers 为空时禁用 Kafka。
type KafkaConfig struct {
	Brokers   string `mapstructure:"brokers"`
	Topic     string `mapstructure:"topic" validate:"required_with=Brokers"`
	TaskTopic string `mapstructure:"task_topic"`
	GroupID   string `mapstructure:"group_id"`
}

// Enabled 表示是否配置了 Kafka。
func (k KafkaConfig) Enabled() bool {
	return k.Brokers != ""
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name" validate:"required"`
}

// ConsistencyConfig 存储存储/元数据一致性检查相关的配置。
type ConsistencyConfig struct {
	// RootPrefix 是遍历对象存储的起点，空串表示存储桶根目录。
	RootPrefix        string        `mapstructure:"root_prefix"`
	RepairBatchSize   int           `mapstructure:"repair_batch_size" validate:"gt=0,lte=1000"`
	RepairMaxInFlight int           `mapstructure:"repair_max_in_flight" validate:"gt=0,lte=64"`
	LockTTL           time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
	ReportTTL         time.Duration `mapstructure:"report_ttl" validate:"gt=0"`
	RecentLogsDefault int           `mapstructure:"recent_logs_default" validate:"gt=0,lte=100"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "consistency-events")
	v.SetDefault("kafka.task_topic", "consistency-tasks")
	v.SetDefault("kafka.group_id", "spatial-hub-reconciler")
	v.SetDefault("consistency.root_prefix", "")
	v.SetDefault("consistency.repair_batch_size", 100)
	v.SetDefault("consistency.repair_max_in_flight", 4)
	v.SetDefault("consistency.lock_ttl", 10*time.Minute)
	v.SetDefault("consistency.report_ttl", 24*time.Hour)
	v.SetDefault("consistency.recent_logs_default", 10)
	v.SetDefault("consistency.auto_migrate", false)
}

// Load 从指定路径读取 YAML 配置，应用默认值和 SPATIALHUB_ 前缀的环境变量覆盖，并进行校验。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SPATIALHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

// Init 加载配置到全局变量 Conf，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
