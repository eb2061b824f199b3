package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgPicoThermo = `{
  "thermo": {
    "profile": "A5-02-05",
    "pairing_window_s": 30,
    "stale_s": 1800,
    "long_press_ms": 5000
  },
  "store": {
    "capacity": 8
  },
  "hal": {
    "debounce_ms": 30
  },
  "heartbeat": {
    "interval": 10
  }
}`

// Bench build: strict teach-in and a short staleness window for testing.
const cfgBench = `{
  "thermo": {
    "profile": "A5-02-05",
    "pairing_window_s": 60,
    "require_teach_in": true,
    "max_dbm": -80,
    "stale_s": 60,
    "stats_s": 10
  },
  "heartbeat": {
    "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico-thermo": []byte(cfgPicoThermo),
	"bench":       []byte(cfgBench),
}
