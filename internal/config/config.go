// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	alerts "plantwatch/internal/alerts/domain"
	plant "plantwatch/internal/plant/domain"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config defines service configuration.
type Config struct {
	HTTPAddr         string               `yaml:"http_addr"`
	DatabaseURL      string               `yaml:"database_url"`
	DataSource       string               `yaml:"data_source"`
	HistoryBackend   string               `yaml:"history_backend"`
	HistoryPath      string               `yaml:"history_path"`
	AlarmsPath       string               `yaml:"alarms_path"`
	RotationInterval time.Duration        `yaml:"rotation_interval"`
	FetchTimeout     time.Duration        `yaml:"fetch_timeout"`
	AlignTicks       bool                 `yaml:"align_ticks"`
	JWTSecret        string               `yaml:"jwt_secret"`
	Rules            []RuleConfig         `yaml:"rules"`
	Notify           NotifyConfig         `yaml:"notify"`
	SeedRows         []map[string]float64 `yaml:"seed_rows"`
}

// RuleConfig is the YAML form of a threshold rule.
type RuleConfig struct {
	Instrument string   `yaml:"instrument"`
	Lower      *float64 `yaml:"lower"`
	Upper      *float64 `yaml:"upper"`
	Page       string   `yaml:"page"`
	Element    string   `yaml:"element"`
	Label      string   `yaml:"label"`
	Unit       string   `yaml:"unit"`
}

// NotifyConfig defines alert fan-out targets.
type NotifyConfig struct {
	WebhookURL string     `yaml:"webhook_url"`
	Template   string     `yaml:"template"`
	MQTT       MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig defines the alert publisher broker.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		DataSource:       BackendMemory,
		HistoryBackend:   BackendFile,
		HistoryPath:      "data/history.json",
		AlarmsPath:       "data/alarms.json",
		RotationInterval: 5 * time.Second,
		FetchTimeout:     5 * time.Second,
		AlignTicks:       true,
		Notify: NotifyConfig{
			MQTT: MQTTConfig{ClientID: "plantwatch", Topic: "plantwatch/alerts/{page}", QoS: 1},
		},
	}
}

// Load reads .env when present, then PLANTWATCH_CONFIG, then environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("PLANTWATCH_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.DataSource = getenvDefault("DATA_SOURCE", cfg.DataSource)
	cfg.HistoryBackend = getenvDefault("HISTORY_BACKEND", cfg.HistoryBackend)
	cfg.HistoryPath = getenvDefault("HISTORY_PATH", cfg.HistoryPath)
	cfg.AlarmsPath = getenvDefault("ALARMS_PATH", cfg.AlarmsPath)
	cfg.RotationInterval = getenvDuration("ROTATION_INTERVAL", cfg.RotationInterval)
	cfg.FetchTimeout = getenvDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.AlignTicks = getenvBool("ALIGN_TICKS", cfg.AlignTicks)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.Notify.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Template = getenvDefault("ALERT_NOTIFY_TEMPLATE", cfg.Notify.Template)
	cfg.Notify.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.Notify.MQTT.Broker)
	cfg.Notify.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.Notify.MQTT.ClientID)
	cfg.Notify.MQTT.Username = getenvDefault("MQTT_USERNAME", cfg.Notify.MQTT.Username)
	cfg.Notify.MQTT.Password = getenvDefault("MQTT_PASSWORD", cfg.Notify.MQTT.Password)
	cfg.Notify.MQTT.Topic = getenvDefault("MQTT_ALERT_TOPIC", cfg.Notify.MQTT.Topic)
	cfg.Notify.MQTT.QoS = getenvIntDefault("MQTT_QOS", cfg.Notify.MQTT.QoS)

	return cfg, cfg.Validate()
}

// Validate checks backend names and required settings.
func (c Config) Validate() error {
	switch c.DataSource {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: postgres data source requires DATABASE_URL or PG_DSN")
		}
	default:
		return fmt.Errorf("config: unknown data source %q", c.DataSource)
	}
	switch c.HistoryBackend {
	case BackendFile:
		if c.HistoryPath == "" {
			return errors.New("config: history path required")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: postgres history requires DATABASE_URL or PG_DSN")
		}
	default:
		return fmt.Errorf("config: unknown history backend %q", c.HistoryBackend)
	}
	if c.AlarmsPath == "" {
		return errors.New("config: alarms path required")
	}
	if c.RotationInterval <= 0 {
		return errors.New("config: rotation interval must be positive")
	}
	if c.Notify.MQTT.QoS < 0 || c.Notify.MQTT.QoS > 2 {
		return fmt.Errorf("config: invalid mqtt qos %d", c.Notify.MQTT.QoS)
	}
	for _, rule := range c.Rules {
		if err := rule.toRule().Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// ThresholdRules returns the configured rule table, or the plant defaults when none is set.
func (c Config) ThresholdRules() []alerts.ThresholdRule {
	if len(c.Rules) == 0 {
		return alerts.DefaultRules()
	}
	out := make([]alerts.ThresholdRule, 0, len(c.Rules))
	for _, rule := range c.Rules {
		out = append(out, rule.toRule())
	}
	return out
}

// Seed returns the configured in-memory rows.
func (c Config) Seed() []plant.Snapshot {
	out := make([]plant.Snapshot, 0, len(c.SeedRows))
	for _, row := range c.SeedRows {
		out = append(out, plant.SnapshotFromRaw(row))
	}
	return out
}

func (r RuleConfig) toRule() alerts.ThresholdRule {
	return alerts.ThresholdRule{
		InstrumentKey: r.Instrument,
		Lower:         r.Lower,
		Upper:         r.Upper,
		Page:          r.Page,
		Element:       r.Element,
		Label:         r.Label,
		Unit:          r.Unit,
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
