package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	DataDir         string
	ConfigDir       string
	SessionSecret   string
	SessionMaxAge   int
	DefaultAdmin    string
	DefaultPassword string
	// MgmtInterface pins the management interface explicitly; when empty
	// it is inferred on first use and recorded.
	MgmtInterface  string
	CommandTimeout time.Duration
	LogLevel       string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnvInt("WANEMU_PORT", 8081),
		DataDir:         getEnvString("WANEMU_DATA_DIR", "./data"),
		ConfigDir:       getEnvString("WANEMU_CONFIG_DIR", "./configs"),
		SessionSecret:   getEnvString("WANEMU_SESSION_SECRET", "change-me-in-production-32bytes!"),
		SessionMaxAge:   getEnvInt("WANEMU_SESSION_MAX_AGE", 86400), // 24 hours
		DefaultAdmin:    getEnvString("WANEMU_DEFAULT_ADMIN", "admin"),
		DefaultPassword: getEnvString("WANEMU_DEFAULT_PASSWORD", "admin"),
		MgmtInterface:   getEnvString("WANEMU_MGMT_INTERFACE", ""),
		CommandTimeout:  getEnvDuration("WANEMU_COMMAND_TIMEOUT", 10*time.Second),
		LogLevel:        getEnvString("WANEMU_LOG_LEVEL", "info"),
	}

	os.MkdirAll(cfg.DataDir, 0755)
	os.MkdirAll(cfg.ConfigDir, 0755)

	return cfg
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
