package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	TransportMQTT = "mqtt"
	TransportAMQP = "amqp"
)

type Config struct {
	// Panel
	PanelOrigin string
	HTTPPort    string
	LogLevel    string

	// Broker connection
	BrokerHost       string
	BrokerSecurePort int
	BrokerPlainPort  int
	BrokerPath       string
	BrokerUsername   string
	BrokerPassword   string
	ClientIDPrefix   string
	SubscribeFilter  string
	LEDTopic         string
	AutoReconnect    bool

	// Telemetry display timing
	LivenessWindow   time.Duration
	PulseDuration    time.Duration
	PulseCancelStale bool

	// Transport selection
	Transport        string
	RabbitMQURL      string
	RabbitMQExchange string
	RabbitMQQueue    string

	// Firebase telemetry mirror (optional)
	FirebaseDbUrl              string
	FirebaseServiceAccountJSON string
	FirebaseBatchSize          int
	FirebaseBatchTimeout       time.Duration

	// Notices (optional)
	TelegramBotToken string
	TelegramChatID   string
	NoticeWebhookURL string

	// Thresholds for telemetry alerts
	TemperatureMin float64
	TemperatureMax float64
	HumidityMin    float64
	HumidityMax    float64
	BatteryMin     float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		PanelOrigin: getEnv("PANEL_ORIGIN", "http://localhost:8080"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		BrokerHost:       getEnv("BROKER_HOST", "mqtt.flespi.io"),
		BrokerSecurePort: getEnvInt("BROKER_SECURE_PORT", 443),
		BrokerPlainPort:  getEnvInt("BROKER_PLAIN_PORT", 80),
		BrokerPath:       getEnv("BROKER_PATH", "/mqtt"),
		BrokerUsername:   getEnv("BROKER_USERNAME", ""),
		BrokerPassword:   getEnv("BROKER_PASSWORD", ""),
		ClientIDPrefix:   getEnv("CLIENT_ID_PREFIX", "client-id-"),
		SubscribeFilter:  getEnv("SUBSCRIBE_FILTER", "node/#"),
		LEDTopic:         getEnv("LED_TOPIC", "node/led"),
		AutoReconnect:    getEnvBool("BROKER_AUTO_RECONNECT", false),

		LivenessWindow:   getEnvDuration("LIVENESS_WINDOW", 3*time.Second),
		PulseDuration:    getEnvDuration("PULSE_DURATION", 500*time.Millisecond),
		PulseCancelStale: getEnvBool("PULSE_CANCEL_STALE", false),

		Transport:        strings.ToLower(getEnv("TRANSPORT", TransportMQTT)),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "amq.topic"),
		RabbitMQQueue:    getEnv("RABBITMQ_QUEUE", "sensorboard"),

		FirebaseDbUrl:              getEnv("FIREBASE_DB_URL", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseBatchSize:          getEnvInt("FIREBASE_BATCH_SIZE", 20),
		FirebaseBatchTimeout:       getEnvDuration("FIREBASE_BATCH_TIMEOUT", 5*time.Second),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		NoticeWebhookURL: getEnv("NOTICE_WEBHOOK_URL", ""),

		// Default thresholds - can be overridden by env vars
		TemperatureMin: getEnvFloat("TEMPERATURE_MIN", 15.0),
		TemperatureMax: getEnvFloat("TEMPERATURE_MAX", 35.0),
		HumidityMin:    getEnvFloat("HUMIDITY_MIN", 30.0),
		HumidityMax:    getEnvFloat("HUMIDITY_MAX", 80.0),
		BatteryMin:     getEnvFloat("BATTERY_MIN", 20.0),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the panel cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportMQTT:
	case TransportAMQP:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required for the %q transport", TransportAMQP)
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.LivenessWindow <= 0 {
		return fmt.Errorf("LIVENESS_WINDOW must be positive, got %s", c.LivenessWindow)
	}
	if c.PulseDuration <= 0 {
		return fmt.Errorf("PULSE_DURATION must be positive, got %s", c.PulseDuration)
	}
	if c.BrokerSecurePort <= 0 || c.BrokerPlainPort <= 0 {
		return fmt.Errorf("broker ports must be positive")
	}
	if c.FirebaseBatchSize <= 0 {
		c.FirebaseBatchSize = 1
	}
	return nil
}

// FirebaseEnabled reports whether the telemetry mirror is configured.
func (c *Config) FirebaseEnabled() bool {
	return c.FirebaseDbUrl != "" && c.FirebaseServiceAccountJSON != ""
}

// TelegramEnabled reports whether Telegram notices are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Redacted returns a copy that is safe to log.
func (c *Config) Redacted() Config {
	out := *c
	out.BrokerUsername = mask(out.BrokerUsername)
	out.BrokerPassword = mask(out.BrokerPassword)
	out.RabbitMQURL = mask(out.RabbitMQURL)
	out.FirebaseServiceAccountJSON = mask(out.FirebaseServiceAccountJSON)
	out.TelegramBotToken = mask(out.TelegramBotToken)
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("3s") or bare milliseconds ("3000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
