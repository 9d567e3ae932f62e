package config

import (
	"fmt"
	"strings"
	"time"

	"wisefido-vitals/owl-common/config"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config 体征汇聚服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 体征汇聚服务特定配置
	Vitals struct {
		Topics struct {
			Vitals string `env:"VITALS_TOPIC" env-default:"sensors/vitals"`  // 体征数据主题
			Status string `env:"STATUS_TOPIC" env-default:"sensors/status"` // 在场/跌倒状态主题
		}

		Discovery struct {
			Prefix      string `env:"DISCOVERY_PREFIX" env-default:"homeassistant"`
			StatePrefix string `env:"STATE_TOPIC_PREFIX" env-default:"wisefido/vitals"`
		}

		// 房间无绑定住户时写入的住户 ID
		FallbackPatientID string `env:"FALLBACK_PATIENT_ID" env-default:"0"`

		// 原始日志、分钟汇总、存活文件的根目录
		DataDir       string `env:"VITALS_DATA_DIR" env-default:"./data"`
		RetentionDays int    `env:"VITALS_RETENTION_DAYS" env-default:"14"`

		PatientCacheTTL time.Duration `env:"PATIENT_CACHE_TTL" env-default:"5m"`

		FallStream       string `env:"FALL_EVENT_STREAM" env-default:"vitals:fall:stream"`
		FallStreamMaxLen int64  `env:"FALL_EVENT_STREAM_MAXLEN" env-default:"10000"`

		// 每条体征样本是否重复计入两次（待产品确认的历史行为，默认关闭）
		DuplicateSamples bool `env:"VITALS_DUPLICATE_SAMPLES" env-default:"false"`
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" env-default:"info"`
		Format string `env:"LOG_FORMAT" env-default:"json"`
	}
}

// Load 加载配置（先读取可选的 .env 文件，再从环境变量解析）
func Load() (*Config, error) {
	_ = godotenv.Load() // .env 不存在时忽略

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.Vitals.Topics.Vitals == "" || c.Vitals.Topics.Status == "" {
		return fmt.Errorf("VITALS_TOPIC and STATUS_TOPIC are required")
	}
	if c.Vitals.Topics.Vitals == c.Vitals.Topics.Status {
		return fmt.Errorf("VITALS_TOPIC and STATUS_TOPIC must differ, got %q", c.Vitals.Topics.Vitals)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Vitals.DataDir == "" {
		return fmt.Errorf("VITALS_DATA_DIR is required")
	}
	if c.Vitals.RetentionDays < 1 {
		return fmt.Errorf("VITALS_RETENTION_DAYS must be at least 1, got %d", c.Vitals.RetentionDays)
	}
	if strings.TrimSpace(c.Vitals.FallbackPatientID) == "" {
		return fmt.Errorf("FALLBACK_PATIENT_ID must not be empty")
	}

	format := strings.ToLower(c.Log.Format)
	if format != "json" && format != "console" && format != "logfmt" {
		return fmt.Errorf("LOG_FORMAT must be 'json', 'console', or 'logfmt', got '%s'", c.Log.Format)
	}

	return nil
}

// Topics 返回需要订阅的主题列表
func (c *Config) Topics() []string {
	return []string{c.Vitals.Topics.Vitals, c.Vitals.Topics.Status}
}
