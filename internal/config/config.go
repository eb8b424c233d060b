// Package config loads the helm process's configuration from a YAML file,
// environment variables (prefix HELM_), and built-in defaults, and can
// hot-reload gain/tsf-style tuning values without a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the autopilot/NMEA hub process.
type Config struct {
	Serial     []SerialPortConfig `mapstructure:"serial"`
	UDP        UDPConfig          `mapstructure:"udp"`
	Redis      RedisConfig        `mapstructure:"redis"`
	Logger     LoggerConfig       `mapstructure:"logger"`
	Autopilot  AutopilotConfig    `mapstructure:"autopilot"`
	Relays     map[string][]string `mapstructure:"relays"`
	MQTT       MQTTConfig         `mapstructure:"mqtt"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
}

// SerialPortConfig names one logical serial port. Resolution of the logical
// name to an actual device node (by USB vendor/interface descriptor) is an
// external collaborator's job; DevicePath is a static fallback for hosts
// without a USB resolver configured.
type SerialPortConfig struct {
	Name       string `mapstructure:"name"`
	DevicePath string `mapstructure:"device_path"`
	Baud       int    `mapstructure:"baud"`

	// QueueOut names the queue this port's raw incoming lines are appended
	// to, for a relay_serial_input task to drain.
	QueueOut string `mapstructure:"queue_out"`

	// Relay names the entry in Relays this port's QueueOut fans out
	// through, e.g. to another serial port's QueueIn and/or the UDP queue.
	// Left empty, this port's traffic is not relayed anywhere.
	Relay string `mapstructure:"relay"`

	// QueueIn names a queue this port drains and writes out to the wire,
	// making it a relay output leg rather than (or in addition to) an
	// input. Left empty, this port is read-only.
	QueueIn string `mapstructure:"queue_in"`
}

// UDPConfig configures the chart-plotter datagram sink.
type UDPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Queue        string        `mapstructure:"queue"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// RedisConfig configures the external command/telemetry key-value store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggerConfig contains logging settings.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AutopilotConfig holds the control-loop tick timing and default gains.
type AutopilotConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	WarmupDelay   time.Duration `mapstructure:"warmup_delay"`
	DefaultGain   int           `mapstructure:"default_gain"`
	DefaultTSF    int           `mapstructure:"default_tsf"`
	DefaultBaseDuty int         `mapstructure:"default_base_duty"`
	RudderLimit   float64       `mapstructure:"rudder_limit"`
}

// MQTTConfig configures the optional alarm/telemetry republish sink.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// DiagnosticsConfig configures the read-only HTTP/WebSocket surface.
type DiagnosticsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Load reads configuration from file, then environment variables, applying
// defaults for anything unset.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	v.SetEnvPrefix("HELM")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

// WatchForChanges re-unmarshals the config on every on-disk edit and
// invokes onChange with the new value. Used to let a crew member retune
// gain/tsf defaults in the field without restarting the autopilot process.
func WatchForChanges(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("udp.host", "255.255.255.255")
	v.SetDefault("udp.port", 10110)
	v.SetDefault("udp.queue", "q_udp")
	v.SetDefault("udp.retry_backoff", 20*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_dir", "./logs")
	v.SetDefault("logger.max_size_mb", 20)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("autopilot.tick_interval", 500*time.Millisecond)
	v.SetDefault("autopilot.warmup_delay", 15*time.Second)
	v.SetDefault("autopilot.default_gain", 325)
	v.SetDefault("autopilot.default_tsf", 1454)
	v.SetDefault("autopilot.default_base_duty", 100_000)
	v.SetDefault("autopilot.rudder_limit", 15.0)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "helm")
	v.SetDefault("mqtt.topic", "boat/alarm")

	v.SetDefault("diagnostics.enabled", false)
	v.SetDefault("diagnostics.addr", ":8088")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".helm")
}
