package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置（拉取模式才需要，纯推模式部署可关闭）
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（刷新事件旁路入口，可选）
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // 订阅主题，如 "insight/refresh/+"
	QoS      byte
}

// Config 面板洞察服务配置
type Config struct {
	Service struct {
		Name     string
		HTTPAddr string
	}

	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// Redis Streams 配置（刷新事件主入口）
	Stream struct {
		Name          string // 刷新事件流名称，如 "insight:refresh:stream"
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int
	}

	// 洞察引擎配置
	Insight struct {
		TenantID string

		// 会话缓存
		SessionKeyPrefix string
		SessionTTL       int // 会话 TTL（小时），限定会话生命周期

		// 出站调用超时（秒）
		// 模型调用必须有上限：周期失败路径会释放 in-flight 标志，
		// 无限等待会永久卡死单飞互斥
		LLMTimeout     int
		ForwardTimeout int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Service.Name = getEnv("SERVICE_NAME", "wisefido-insight")
	cfg.Service.HTTPAddr = getEnv("HTTP_ADDR", ":8086")

	// 从环境变量加载（默认值）
	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-insight")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "insight/refresh/+")
	cfg.MQTT.QoS = 1

	cfg.Stream.Name = getEnv("INSIGHT_STREAM", "insight:refresh:stream")
	cfg.Stream.ConsumerGroup = getEnv("INSIGHT_CONSUMER_GROUP", "insight-engine-group")
	cfg.Stream.ConsumerName = getEnv("INSIGHT_CONSUMER_NAME", "insight-engine-1")
	cfg.Stream.BatchSize = getEnvInt("INSIGHT_BATCH_SIZE", 10)

	cfg.Insight.TenantID = getEnv("TENANT_ID", "")
	cfg.Insight.SessionKeyPrefix = getEnv("INSIGHT_SESSION_KEY_PREFIX", "insight:session:")
	cfg.Insight.SessionTTL = getEnvInt("INSIGHT_SESSION_TTL_HOURS", 24)
	cfg.Insight.LLMTimeout = getEnvInt("LLM_TIMEOUT_SECONDS", 60)
	cfg.Insight.ForwardTimeout = getEnvInt("FORWARD_TIMEOUT_SECONDS", 15)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
