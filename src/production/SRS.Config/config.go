package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// MQTT configuration
	MQTT MQTTConfig `json:"mqtt"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// CORS configuration
	CORS CORSConfig `json:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	Mode            string        `json:"mode"` // gin mode: release, debug or test
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	Enabled     bool          `json:"enabled"`
	BrokerHost  string        `json:"broker_host"`
	BrokerPort  int           `json:"broker_port"`
	BrokerUser  string        `json:"broker_user"`
	BrokerPass  string        `json:"broker_pass"`
	UseTLS      bool          `json:"use_tls"`
	CACertPath  string        `json:"ca_cert_path"`
	Topic       string        `json:"topic"`
	ClientID    string        `json:"client_id"`
	SharedGroup string        `json:"shared_group"`
	KeepAlive   time.Duration `json:"keep_alive"`
	PingTimeout time.Duration `json:"ping_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout or stderr
	EnableCaller bool   `json:"enable_caller"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	ExposedHeaders   []string `json:"exposed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

// LoadApiConfig loads configuration for the API service
func LoadApiConfig() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	env := &envReader{}

	config := &Config{
		Server: ServerConfig{
			Port:            env.getEnv("PORT", "3000"),
			Mode:            env.getEnv("GIN_MODE", "release"),
			ReadTimeout:     env.getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    env.getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     env.getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: env.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		MQTT: MQTTConfig{
			Enabled:     env.getBool("MQTT_ENABLED", false),
			BrokerHost:  env.getEnv("BROKER_HOST", "localhost"),
			BrokerPort:  env.getInt("BROKER_PORT", 1883),
			BrokerUser:  env.getEnv("BROKER_USER", ""),
			BrokerPass:  env.getEnv("BROKER_PASS", ""),
			UseTLS:      env.getBool("BROKER_TLS", false),
			CACertPath:  env.getEnv("BROKER_CA_FILE", ""),
			Topic:       env.getEnv("MQTT_TOPIC", "sensors/+/data"),
			ClientID:    env.getEnv("MQTT_CLIENT_ID", "sensor-registry"),
			SharedGroup: env.getEnv("MQTT_SHARED_GROUP", ""),
			KeepAlive:   env.getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout: env.getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:        env.getEnv("LOG_LEVEL", "info"),
			Format:       env.getEnv("LOG_FORMAT", "text"),
			Output:       env.getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: env.getBool("LOG_ENABLE_CALLER", false),
		},
		CORS: CORSConfig{
			AllowedOrigins:   env.getStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   env.getStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders:   env.getStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}),
			ExposedHeaders:   env.getStringSlice("CORS_EXPOSED_HEADERS", []string{"Content-Length", "X-Request-ID"}),
			AllowCredentials: env.getBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           env.getInt("CORS_MAX_AGE", 43200), // 12 hours
		},
	}

	if env.err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", env.err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Server.Port)
	}
	switch c.Server.Mode {
	case "release", "debug", "test":
	default:
		return fmt.Errorf("GIN_MODE must be release, debug or test, got %q", c.Server.Mode)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list at least one origin")
	}
	if c.CORS.AllowCredentials && containsWildcard(c.CORS.AllowedOrigins) {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be combined with a wildcard origin")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Topic == "" {
			return fmt.Errorf("MQTT_TOPIC is required when MQTT_ENABLED is set")
		}
		if c.MQTT.BrokerPort < 1 || c.MQTT.BrokerPort > 65535 {
			return fmt.Errorf("BROKER_PORT must be between 1 and 65535, got %d", c.MQTT.BrokerPort)
		}
	}
	return nil
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	scheme := "tcp"
	if c.MQTT.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.BrokerHost, c.MQTT.BrokerPort)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// envReader parses typed environment variables and keeps the first error it meets
type envReader struct {
	err error
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *envReader) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return intValue
}

func (r *envReader) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	r.fail(key, fmt.Errorf("%q is not a boolean", value))
	return defaultValue
}

func (r *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, err)
		return defaultValue
	}
	return duration
}

// getStringSlice reads a comma-separated list, dropping empty entries
func (r *envReader) getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
