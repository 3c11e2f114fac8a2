package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Upstream UpstreamConfig
	Tracker  TrackerConfig
	Push     PushConfig
	AMQP     AMQPConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// UpstreamConfig holds the dispatch API endpoint, credentials and the fixed
// values every ride creation carries.
type UpstreamConfig struct {
	BaseURL       string
	User          string
	Password      string
	ClientID      int
	ServiceItemID int
	PaymentTypeID int
	DefaultCEP    string
	City          string
	State         string
	Timeout       time.Duration
}

// TrackerConfig holds ride polling configuration.
type TrackerConfig struct {
	PollInterval  time.Duration
	HistoryLimit  int
	NotifyTimeout time.Duration
}

// PushConfig holds web push (VAPID) and optional Firebase settings.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int

	FirebaseCredentialsFile string
	FirebaseProjectID       string
	FirebaseTopic           string
}

// AMQPConfig holds RabbitMQ configuration. An empty URL disables events.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to read .env: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "3001"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ridewatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridewatch"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Upstream: UpstreamConfig{
			BaseURL:       getEnv("MD_API_BASE_URL", ""),
			User:          getEnv("MD_USER", ""),
			Password:      getEnv("MD_PASS", ""),
			ClientID:      getIntEnv("CLIENTE_ID", 0),
			ServiceItemID: getIntEnv("SERVICO_ID", 0),
			PaymentTypeID: getIntEnv("PAGAMENTO_ID", 0),
			DefaultCEP:    getEnv("CEP_PADRAO", ""),
			City:          getEnv("CIDADE", ""),
			State:         getEnv("UF", ""),
			Timeout:       getDurationEnv("MD_API_TIMEOUT", 15*time.Second),
		},
		Tracker: TrackerConfig{
			PollInterval:  getDurationEnv("TRACKER_POLL_INTERVAL", 16*time.Second),
			HistoryLimit:  getIntEnv("TRACKER_HISTORY_LIMIT", 120),
			NotifyTimeout: getDurationEnv("TRACKER_NOTIFY_TIMEOUT", 10*time.Second),
		},
		Push: PushConfig{
			VAPIDPublicKey:          getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey:         getEnv("VAPID_PRIVATE_KEY", ""),
			Subscriber:              getEnv("VAPID_SUBJECT", "mailto:admin@example.com"),
			TTL:                     getIntEnv("PUSH_TTL", 3600),
			FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseTopic:           getEnv("FIREBASE_TOPIC", "rides"),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "ride.events"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
