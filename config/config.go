package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Battery  BatteryConfig  `mapstructure:"battery"`
	Polling  PollingConfig  `mapstructure:"polling"`
	API      APIConfig      `mapstructure:"api"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Database DatabaseConfig `mapstructure:"database"`
}

type BatteryConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	UnitID  uint8         `mapstructure:"unit_id"`
	Timeout time.Duration `mapstructure:"timeout"`
	Variant string        `mapstructure:"variant"`
}

type PollingConfig struct {
	// Tier intervals; zero keeps the built-in default.
	High    time.Duration `mapstructure:"high"`
	Medium  time.Duration `mapstructure:"medium"`
	Low     time.Duration `mapstructure:"low"`
	VeryLow time.Duration `mapstructure:"very_low"`

	// CoalesceGap is the largest address gap (words) merged into one
	// range read.
	CoalesceGap uint16 `mapstructure:"coalesce_gap"`

	// FailureThreshold marks a poll group degraded after this many
	// consecutive transport failures.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// EnabledValues limits polling to these logical names (plus
	// derived-metric dependencies). Empty polls everything readable.
	EnabledValues []string `mapstructure:"enabled_values"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path"`
	Interval time.Duration `mapstructure:"interval"`

	// Retention deletes readings older than this; zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/marstek-monitor")
	}

	// Set defaults
	viper.SetDefault("battery.host", "192.168.1.100")
	viper.SetDefault("battery.port", 502)
	viper.SetDefault("battery.unit_id", 1)
	viper.SetDefault("battery.timeout", "10s")
	viper.SetDefault("battery.variant", "v1")
	viper.SetDefault("polling.high", "5s")
	viper.SetDefault("polling.medium", "30s")
	viper.SetDefault("polling.low", "60s")
	viper.SetDefault("polling.very_low", "600s")
	viper.SetDefault("polling.coalesce_gap", 4)
	viper.SetDefault("polling.failure_threshold", 3)
	viper.SetDefault("api.port", 8046)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "marstek")
	viper.SetDefault("mqtt.client_id", "marstek-monitor")
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("database.path", "./marstek.db")
	viper.SetDefault("database.interval", "60s")
	viper.SetDefault("database.retention", "0")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
