package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrIncomplete is returned when required device IDs are missing.
// Automation stays disabled until the config validates; the caller
// surfaces this as a configuration alert instead of crashing.
var ErrIncomplete = errors.New("config: incomplete")

// Devices maps logical roles to platform device IDs.
type Devices struct {
	HumiditySensor    string `yaml:"humidity_sensor"`
	TemperatureSensor string `yaml:"temperature_sensor"`
	MotionSensor      string `yaml:"motion_sensor"`
	DoorSensor        string `yaml:"door_sensor"`
	WindowSensor      string `yaml:"window_sensor"`
	Dehumidifier      string `yaml:"dehumidifier"`
	Heater            string `yaml:"heater"`
}

// Thresholds holds the manually configured control parameters.
type Thresholds struct {
	HumidityHigh float64 `yaml:"humidity_high"`
	HumidityLow  float64 `yaml:"humidity_low"`
	DelayMinutes float64 `yaml:"delay_minutes"`
}

// HeatingBoost configures the optional boost while an event is active.
type HeatingBoost struct {
	Enabled        bool    `yaml:"enabled"`
	DeltaCelsius   float64 `yaml:"delta_celsius"`
	BaselineTarget float64 `yaml:"baseline_target"`
}

// Config defines the automation configuration.
type Config struct {
	Platform     string       `yaml:"platform"`
	PlatformURL  string       `yaml:"platform_url"`
	PlatformAuth string       `yaml:"platform_token"`
	Devices      Devices      `yaml:"devices"`
	Thresholds   Thresholds   `yaml:"thresholds"`
	HeatingBoost HeatingBoost `yaml:"heating_boost"`

	RiseRatePerMinute float64       `yaml:"rise_rate_per_minute"`
	RiseRateSamples   int           `yaml:"rise_rate_samples"`
	MaxSampleGap      time.Duration `yaml:"max_sample_gap"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	SampleInterval    time.Duration `yaml:"sample_interval"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`

	DehumidifierWatts float64 `yaml:"dehumidifier_watts"`
	TariffEURPerKWh   float64 `yaml:"tariff_eur_per_kwh"`

	LookbackDays    int     `yaml:"lookback_days"`
	MinConfidence   float64 `yaml:"min_confidence"`
	DailyOptimizeAt string  `yaml:"daily_optimize_at"`

	AlertWebhookURL string `yaml:"alert_webhook_url"`
}

// Load loads config from the yaml file named by HOMECLIMATE_CONFIG,
// with env fallbacks and built-in defaults.
func Load() (Config, error) {
	cfg := Config{
		Platform:    getenvDefault("PLATFORM", "homeassistant"),
		PlatformURL: os.Getenv("PLATFORM_URL"),
		Thresholds: Thresholds{
			HumidityHigh: 70,
			HumidityLow:  60,
			DelayMinutes: 15,
		},
		HeatingBoost: HeatingBoost{
			DeltaCelsius:   2,
			BaselineTarget: 21,
		},
		RiseRatePerMinute: 2,
		RiseRateSamples:   3,
		MaxSampleGap:      15 * time.Minute,
		TickInterval:      10 * time.Second,
		SampleInterval:    5 * time.Minute,
		CommandTimeout:    5 * time.Second,
		DehumidifierWatts: getenvFloatDefault("DEHUMIDIFIER_WATTS", 300),
		TariffEURPerKWh:   getenvFloatDefault("TARIFF_EUR_PER_KWH", 0.30),
		LookbackDays:      30,
		MinConfidence:     0.7,
		DailyOptimizeAt:   getenvDefault("DAILY_OPTIMIZE_AT", "03:00"),
		AlertWebhookURL:   os.Getenv("ALERT_WEBHOOK_URL"),
	}

	if path := os.Getenv("HOMECLIMATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.PlatformURL == "" {
		cfg.PlatformURL = os.Getenv("PLATFORM_URL")
	}
	if cfg.PlatformAuth == "" {
		cfg.PlatformAuth = os.Getenv("PLATFORM_TOKEN")
	}
	if cfg.Devices.HumiditySensor == "" {
		cfg.Devices.HumiditySensor = os.Getenv("HUMIDITY_SENSOR_ID")
	}
	if cfg.Devices.Dehumidifier == "" {
		cfg.Devices.Dehumidifier = os.Getenv("DEHUMIDIFIER_ID")
	}
	return cfg, nil
}

// Validate checks the config once at automation-enable time.
func (c Config) Validate() error {
	var missing []string
	if c.PlatformURL == "" {
		missing = append(missing, "platform_url")
	}
	if c.Devices.HumiditySensor == "" {
		missing = append(missing, "devices.humidity_sensor")
	}
	if c.Devices.Dehumidifier == "" {
		missing = append(missing, "devices.dehumidifier")
	}
	if c.HeatingBoost.Enabled && c.Devices.Heater == "" {
		missing = append(missing, "devices.heater")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	if c.Thresholds.HumidityLow >= c.Thresholds.HumidityHigh {
		return errors.New("config: humidity_low must be below humidity_high")
	}
	if c.Thresholds.DelayMinutes <= 0 {
		return errors.New("config: delay_minutes must be positive")
	}
	if c.TickInterval <= 0 || c.SampleInterval <= 0 {
		return errors.New("config: intervals must be positive")
	}
	return nil
}

// SensorNames returns configured sensor roles and their device IDs,
// in stable order, for the live snapshot endpoint.
func (c Config) SensorNames() []struct{ Name, DeviceID string } {
	all := []struct{ Name, DeviceID string }{
		{"humidity", c.Devices.HumiditySensor},
		{"temperature", c.Devices.TemperatureSensor},
		{"motion", c.Devices.MotionSensor},
		{"door", c.Devices.DoorSensor},
		{"window", c.Devices.WindowSensor},
		{"dehumidifier", c.Devices.Dehumidifier},
		{"heater", c.Devices.Heater},
	}
	var configured []struct{ Name, DeviceID string }
	for _, entry := range all {
		if entry.DeviceID != "" {
			configured = append(configured, entry)
		}
	}
	return configured
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
