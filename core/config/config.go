package config

import (
	"path/filepath"
	"time"

	"github.com/yedidyatob/WhatsAppAssistant/core/runtimecfg"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Whatsapp WhatsappConfig
	Worker   WorkerConfig
	Runtime  RuntimeConfig
}

type AppConfig struct {
	Version     string
	Port        string
	Debug       bool
	Environment string
	BasePath    string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type WhatsappConfig struct {
	GatewayURL                string
	AssistantMode             bool
	AssistantMaxScheduleHours int
	DefaultTimezone           string
	TypeUser                  string
	TypeGroup                 string
}

type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

type RuntimeConfig struct {
	CommonConfigPath        string
	TimedMessagesConfigPath string
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false)
	if !debug {
		debug = getEnvBool("DEBUG", false)
	}

	appCfg := AppConfig{
		Version:     "v1.2.0",
		Port:        getEnv("APP_PORT", "8080"),
		Debug:       debug,
		Environment: getEnv("APP_ENV", "development"),
		BasePath:    getEnv("APP_BASE_PATH", ""),
	}

	dbCfg := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Name:     getEnv("DB_NAME", filepath.Join(baseDir, "timed_messages.db")),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
	}

	waCfg := WhatsappConfig{
		GatewayURL:                getEnv("WHATSAPP_GATEWAY_URL", "http://whatsapp_gateway:3000"),
		AssistantMode:             getEnvBool("WHATSAPP_ASSISTANT_MODE", false),
		AssistantMaxScheduleHours: getEnvInt("WHATSAPP_ASSISTANT_MAX_SCHEDULE_HOURS", 24),
		DefaultTimezone:           getEnv("DEFAULT_TIMEZONE", ""),
		TypeUser:                  "@s.whatsapp.net",
		TypeGroup:                 "@g.us",
	}

	workerCfg := WorkerConfig{
		PollInterval: time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		BatchSize:    getEnvInt("WORKER_BATCH_SIZE", 10),
	}

	runtimeCfg := RuntimeConfig{
		CommonConfigPath:        getEnv("WHATSAPP_COMMON_CONFIG_PATH", runtimecfg.DefaultCommonConfigPath),
		TimedMessagesConfigPath: getEnv("WHATSAPP_TIMED_MESSAGES_CONFIG_PATH", runtimecfg.DefaultTimedMessagesConfigPath),
	}

	cfg := &Config{
		App:      appCfg,
		Database: dbCfg,
		Whatsapp: waCfg,
		Worker:   workerCfg,
		Runtime:  runtimeCfg,
	}

	Global = cfg
	return cfg, nil
}
