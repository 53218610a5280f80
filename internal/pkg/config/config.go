package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr       string
	DatabaseURL      string
	MigrationsFolder string
	Seed             bool
	LogLevel         string
	// Mqtt is nil when no broker is configured.
	Mqtt *MqttConfig
}

type PollerConfig struct {
	ServerURL      string
	Interval       time.Duration
	Timeout        time.Duration
	ReconcileDelay time.Duration
	LogLevel       string
}

type MqttConfig struct {
	Host            string `env:"MQTT_HOST"`
	Username        string `env:"MQTT_USER"`
	Password        string `env:"MQTT_PASS"`
	ClientID        string `env:"MQTT_CLIENT_ID" envDefault:"smartcontrol"`
	DiscoveryPrefix string `env:"MQTT_DISCOVERY_PREFIX" envDefault:"homeassistant"`
	// RepublishSchedule is a cron spec for re-sending every retained state.
	RepublishSchedule string `env:"MQTT_REPUBLISH_SCHEDULE" envDefault:"*/5 * * * *"`
}

// MqttFromEnv returns the broker settings, or nil when MQTT_HOST is unset.
func MqttFromEnv() (*MqttConfig, error) {
	cfg, err := env.ParseAs[MqttConfig]()
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, nil
	}
	return &cfg, nil
}
