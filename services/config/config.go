package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"temppair-go/bus"
	"temppair-go/x/mathx"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// Section topics, all retained.
var (
	TopicThermo    = bus.T(configPrefix, "thermo")
	TopicStore     = bus.T(configPrefix, "store")
	TopicHAL       = bus.T(configPrefix, "hal")
	TopicHeartbeat = bus.T(configPrefix, "heartbeat")
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Typed sections
// -----------------------------------------------------------------------------

// Thermo configures the telegram path and the pairing session.
type Thermo struct {
	Profile        string `json:"profile"`          // EEP, e.g. "A5-02-05"
	WindowS        int    `json:"pairing_window_s"` // pairing session length
	RequireTeachIn bool   `json:"require_teach_in"`
	MaxDBm         int    `json:"max_dbm"` // 0 disables the signal filter, else e.g. -70
	StaleS         int    `json:"stale_s"`
	LongPressMs    int    `json:"long_press_ms"` // button hold that forgets every sensor
	TickMs         int    `json:"tick_ms"`
	StatsS         int    `json:"stats_s"` // core/stats publish period, 0 disables
}

// Store configures the paired address table.
type Store struct {
	Capacity int `json:"capacity"`
}

// HAL configures the radio and button workers.
type HAL struct {
	DebounceMs   int `json:"debounce_ms"`
	MaxChunk     int `json:"max_chunk"`
	RadioResetMs int `json:"radio_reset_ms"`
}

// Heartbeat configures the periodic status line.
type Heartbeat struct {
	Interval int `json:"interval"` // seconds
}

// Config is one device's full configuration.
type Config struct {
	Thermo    Thermo    `json:"thermo"`
	Store     Store     `json:"store"`
	HAL       HAL       `json:"hal"`
	Heartbeat Heartbeat `json:"heartbeat"`
}

// Defaults returns the configuration used for absent keys.
func Defaults() Config {
	return Config{
		Thermo: Thermo{
			Profile:     "A5-02-05",
			WindowS:     30,
			StaleS:      30 * 60,
			LongPressMs: 5000,
			TickMs:      50,
			StatsS:      60,
		},
		Store:     Store{Capacity: 8},
		HAL:       HAL{DebounceMs: 30, MaxChunk: 64, RadioResetMs: 100},
		Heartbeat: Heartbeat{Interval: 10},
	}
}

// clamp brings every field into its working range.
func (c *Config) clamp() {
	c.Thermo.WindowS = mathx.Clamp(c.Thermo.WindowS, 5, 600)
	c.Thermo.MaxDBm = mathx.Clamp(c.Thermo.MaxDBm, -128, 0)
	c.Thermo.StaleS = mathx.Clamp(c.Thermo.StaleS, 10, 24*3600)
	c.Thermo.LongPressMs = mathx.Clamp(c.Thermo.LongPressMs, 1000, 30000)
	c.Thermo.TickMs = mathx.Clamp(c.Thermo.TickMs, 10, 1000)
	c.Thermo.StatsS = mathx.Clamp(c.Thermo.StatsS, 0, 3600)
	c.Store.Capacity = mathx.Clamp(c.Store.Capacity, 1, 0xFFFF)
	c.HAL.DebounceMs = mathx.Clamp(c.HAL.DebounceMs, 0, 500)
	c.HAL.MaxChunk = mathx.Clamp(c.HAL.MaxChunk, 16, 256)
	c.HAL.RadioResetMs = mathx.Clamp(c.HAL.RadioResetMs, 1, 2000)
	c.Heartbeat.Interval = mathx.Clamp(c.Heartbeat.Interval, 1, 3600)
}

// Parse decodes raw JSON over the defaults. Unknown keys are rejected so a
// misspelt setting does not silently fall back.
func Parse(raw []byte) (Config, error) {
	c := Defaults()
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, err
	}
	c.clamp()
	return c, nil
}

// Load resolves and parses the embedded config for device.
func Load(device string) (Config, error) {
	if device == "" {
		return Config{}, errors.New("missing device ID")
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return Config{}, errors.New("no embedded config for device: " + device)
	}
	return Parse(raw)
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig loads the device config and publishes each section as a
// retained message.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	c, err := Load(device)
	if err != nil {
		return err
	}
	Publish(conn, c)
	return nil
}

// Publish sends every section of c as a retained message.
func Publish(conn *bus.Connection, c Config) {
	conn.Publish(conn.NewMessage(TopicThermo, c.Thermo, true))
	conn.Publish(conn.NewMessage(TopicStore, c.Store, true))
	conn.Publish(conn.NewMessage(TopicHAL, c.HAL, true))
	conn.Publish(conn.NewMessage(TopicHeartbeat, c.Heartbeat, true))
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config] Warn:", err.Error())
		}
	}()
}
