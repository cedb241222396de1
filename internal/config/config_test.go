package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "5051", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "taskplanner-api", cfg.JWT.Issuer)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.ExpirationTime)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Less(t, cfg.WebSocket.PingPeriod, cfg.WebSocket.PongWait)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.WebSocket.AllowedOrigins)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("WS_PONG_WAIT", "20s")
	t.Setenv("WS_PING_PERIOD", "15s")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := loadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.Server.Addr())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PingPeriod)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebSocket.AllowedOrigins)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_RejectsPingPeriodAbovePongWait(t *testing.T) {
	t.Setenv("WS_PONG_WAIT", "10s")
	t.Setenv("WS_PING_PERIOD", "30s")

	_, err := loadFrom(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PingPeriod")
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := loadFrom(viper.New())
	assert.Error(t, err)
}

func TestLoad_KafkaEnabledRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")

	_, err := loadFrom(viper.New())
	assert.Error(t, err)
}
