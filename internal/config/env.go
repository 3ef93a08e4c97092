package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultPort = "4777"

type Env struct {
	AppAddr string `mapstructure:"app_addr"`
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	DBDriver       string `mapstructure:"db_driver"`
	DBDSN          string `mapstructure:"db_dsn"`
	DBMaxOpenConns int    `mapstructure:"db_max_open_conns"`

	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`

	ChatQueueSize  int           `mapstructure:"chat_queue_size"`
	ChatRateLimit  int           `mapstructure:"chat_rate_limit"`
	ChatRateWindow time.Duration `mapstructure:"chat_rate_window"`

	WSReadLimit int64         `mapstructure:"ws_read_limit"`
	WSPongWait  time.Duration `mapstructure:"ws_pong_wait"`
	WSWriteWait time.Duration `mapstructure:"ws_write_wait"`

	// ConfigFile is the yaml file that was read, empty when only defaults and
	// environment variables were used.
	ConfigFile string `mapstructure:"-"`
}

// Addr is the listen address. APP_ADDR wins over PORT.
func (e Env) Addr() string {
	if a := strings.TrimSpace(e.AppAddr); a != "" {
		return a
	}
	port := strings.TrimSpace(e.Port)
	if port == "" {
		port = DefaultPort
	}
	return ":" + port
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas. An empty result
// means every origin is allowed.
func (e Env) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(e.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			out = append(out, o)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_addr", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("gin_mode", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("db_driver", "memory")
	v.SetDefault("db_dsn", "root:@tcp(127.0.0.1:3306)/shared_trips?parseTime=true&loc=UTC&charset=utf8mb4&timeout=5s&readTimeout=30s&writeTimeout=30s")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("chat_queue_size", 64)
	v.SetDefault("chat_rate_limit", 20)
	v.SetDefault("chat_rate_window", "10s")
	v.SetDefault("ws_read_limit", 32768)
	v.SetDefault("ws_pong_wait", "60s")
	v.SetDefault("ws_write_wait", "10s")
}

// LoadEnv reads defaults, then config/config.<CONFIG_ENV>.yaml when present,
// then environment variables.
func LoadEnv() (Env, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.AutomaticEnv()

	name := strings.TrimSpace(os.Getenv("CONFIG_ENV"))
	if name == "" {
		name = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", name)
	v.SetConfigFile(fileName)

	var env Env
	if err := v.ReadInConfig(); err == nil {
		env.ConfigFile = v.ConfigFileUsed()
	} else if _, statErr := os.Stat(fileName); statErr == nil {
		return Env{}, fmt.Errorf("read %s: %w", fileName, err)
	}

	if err := v.Unmarshal(&env); err != nil {
		return Env{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return env.normalize()
}

func (e Env) normalize() (Env, error) {
	e.DBDriver = strings.ToLower(strings.TrimSpace(e.DBDriver))
	switch e.DBDriver {
	case "mysql", "memory":
	default:
		return e, fmt.Errorf("unsupported DB_DRIVER %q (want mysql or memory)", e.DBDriver)
	}
	if e.DBDriver == "mysql" && strings.TrimSpace(e.DBDSN) == "" {
		return e, fmt.Errorf("DB_DSN is required when DB_DRIVER=mysql")
	}
	if e.DBMaxOpenConns <= 0 {
		e.DBMaxOpenConns = 25
	}
	if e.ChatQueueSize <= 0 {
		e.ChatQueueSize = 64
	}
	if e.WSReadLimit <= 0 {
		e.WSReadLimit = 32768
	}
	if e.WSPongWait <= 0 {
		e.WSPongWait = 60 * time.Second
	}
	if e.WSWriteWait <= 0 {
		e.WSWriteWait = 10 * time.Second
	}
	return e, nil
}
