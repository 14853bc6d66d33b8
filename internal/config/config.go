package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Engine     EngineConfig     `yaml:"engine"`
	Notify     NotifyConfig     `yaml:"notify"`
	Log        LogConfig        `yaml:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Security   SecurityConfig   `yaml:"security"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN assembles a Postgres connection string from the individual fields.
func (d DatabaseConfig) DSN() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, ssl)
}

// EngineConfig controls the playbook execution engine.
type EngineConfig struct {
	Workers            int           `yaml:"workers"`              // concurrent execution runners
	QueueSize          int           `yaml:"queue_size"`           // pending execution backlog
	DefaultStepTimeout time.Duration `yaml:"default_step_timeout"` // used when a step declares no timeout
}

// NotifyConfig controls outbound notification delivery.
type NotifyConfig struct {
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json, text
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxAge     int    `yaml:"max_age"`     // days
	MaxBackups int    `yaml:"max_backups"` // number of backup files
	Compress   bool   `yaml:"compress"`
}

type MonitoringConfig struct {
	Enabled      bool               `yaml:"enabled"`
	MetricsPath  string             `yaml:"metrics_path"`
	HealthChecks HealthChecksConfig `yaml:"health_checks"`
	Tracing      TracingConfig      `yaml:"tracing"`
}

type HealthChecksConfig struct {
	Database bool `yaml:"database"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP gRPC endpoint, e.g. http://otel-collector:4317
	Insecure    bool    `yaml:"insecure"`     // plaintext for local/dev
	SampleRatio float64 `yaml:"sample_ratio"` // 0.0~1.0
	ServiceName string  `yaml:"service_name"`
}

type SecurityConfig struct {
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
}

type RateLimitingConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

func Load() *Config {
	config := GetDefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		panic(err)
	}
	return config
}

// GetDefaultConfig returns the built-in defaults, used when config.yml is
// absent or partial.
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "password",
			Name:            "soarify",
			SSLMode:         "disable",
			MaxOpenConns:    100,
			MaxIdleConns:    10,
			ConnMaxLifetime: 3600 * time.Second,
		},
		Engine: EngineConfig{
			Workers:            4,
			QueueSize:          64,
			DefaultStepTimeout: 300 * time.Second,
		},
		Notify: NotifyConfig{
			WebhookTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "both",
			FilePath:   "./logs/soarify.log",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			HealthChecks: HealthChecksConfig{
				Database: true,
			},
			Tracing: TracingConfig{
				Enabled:     false,
				Endpoint:    "http://localhost:4317",
				Insecure:    true,
				SampleRatio: 0.1,
				ServiceName: "soarify",
			},
		},
		Security: SecurityConfig{
			RateLimiting: RateLimitingConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
		},
	}
}
