// Package config provides simulation configuration files for MDPSim.
//
// A configuration sizes the predictor structures and fixes the feeder
// policy. Files are JSON or YAML, chosen by extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/mdpsim/timing/mdp"
)

// SimConfig holds everything needed to set up one simulation run.
type SimConfig struct {
	// Predictor sizes the window, the prediction table and the
	// synchronization table.
	Predictor mdp.Config `json:"predictor" yaml:"predictor"`

	// MemoryOnly makes the feeder skip non-memory instructions, so one
	// cycle stands for one memory instruction instead of one instruction.
	// Default: false.
	MemoryOnly bool `json:"memory_only" yaml:"memory_only"`

	// ClockGHz is the core clock used to express cycles as simulated time.
	// Default: 3.5 GHz.
	ClockGHz float64 `json:"clock_ghz" yaml:"clock_ghz"`
}

// DefaultConfig returns a SimConfig with the 64-entry, 10-cycle predictor.
func DefaultConfig() *SimConfig {
	return &SimConfig{
		Predictor:  mdp.DefaultConfig(),
		MemoryOnly: false,
		ClockGHz:   3.5,
	}
}

// Frequency returns the core clock as an Akita frequency.
func (c *SimConfig) Frequency() sim.Freq {
	return sim.Freq(c.ClockGHz) * sim.GHz
}

// SimulatedTime converts a cycle count into seconds at the core clock.
func (c *SimConfig) SimulatedTime(cycles uint64) sim.VTimeInSec {
	return sim.VTimeInSec(float64(cycles) / float64(c.Frequency()))
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a SimConfig from a JSON or YAML file. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// SaveConfig writes a SimConfig to a JSON or YAML file.
func (c *SimConfig) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the predictor sizes and the clock.
func (c *SimConfig) Validate() error {
	if err := c.Predictor.Validate(); err != nil {
		return err
	}
	if c.ClockGHz <= 0 {
		return fmt.Errorf("clock_ghz must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the SimConfig.
func (c *SimConfig) Clone() *SimConfig {
	return &SimConfig{
		Predictor:  c.Predictor,
		MemoryOnly: c.MemoryOnly,
		ClockGHz:   c.ClockGHz,
	}
}
