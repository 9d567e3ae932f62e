package config

import (
	"fmt"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     int    `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD" env-default:"postgres"`
	Database string `env:"DB_NAME" env-default:"owlrd"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`
	MaxConns int    `env:"DB_MAX_CONNS" env-default:"10"`
	MaxIdle  int    `env:"DB_MAX_IDLE" env-default:"2"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string `env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	ClientID string `env:"MQTT_CLIENT_ID" env-default:"wisefido-vitals"`
	Username string `env:"MQTT_USERNAME"`
	Password string `env:"MQTT_PASSWORD"`
	QoS      byte   `env:"MQTT_QOS" env-default:"1"`

	// 断线重连的最大退避间隔（paho 内部从 1s 开始指数退避）
	MaxReconnectInterval time.Duration `env:"MQTT_MAX_RECONNECT_INTERVAL" env-default:"30s"`
	ConnectTimeout       time.Duration `env:"MQTT_CONNECT_TIMEOUT" env-default:"10s"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}
