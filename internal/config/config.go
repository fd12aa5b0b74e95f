// Package config loads per-room tuning from YAML, grounded in the
// reference corpus's node-config pattern (orbas1-Synnergy's devnet
// loader): a plain struct with yaml tags, unmarshaled via
// gopkg.in/yaml.v3, defaults applied after parse.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Room is the tunable parameter set for one room (spec §4.C/§4.I/§4.K/§4.M/
// §4.O): entity capacity, hash-history window, partition size, rollback
// ring size, catch-up ceiling, and tick rate.
type Room struct {
	MaxEntities      uint32 `yaml:"max_entities"`
	HashHistoryWindow int    `yaml:"hash_history_window"`
	PartitionSize    int    `yaml:"partition_size"`
	RollbackSize     int    `yaml:"rollback_size"`
	MaxCatchupFrames uint32 `yaml:"max_catchup_frames"`
	TickRateHz       int    `yaml:"tick_rate_hz"`
	StrictDeterminism bool  `yaml:"strict_determinism"`
}

// Defaults returns the spec's documented defaults (hash-history window 10,
// MAX_CATCHUP_FRAMES 200, rollback ring 60) plus reasonable values for the
// fields the spec leaves to implementations.
func Defaults() Room {
	return Room{
		MaxEntities:       1 << 20,
		HashHistoryWindow: 10,
		PartitionSize:     50,
		RollbackSize:      60,
		MaxCatchupFrames:  200,
		TickRateHz:        30,
		StrictDeterminism: false,
	}
}

// Load reads a Room config from a YAML file at path, starting from
// Defaults() so an omitted field keeps its documented default rather than
// zeroing out.
func Load(path string) (Room, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses Room config from an in-memory YAML document, starting from
// Defaults().
func Parse(data []byte) (Room, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}
