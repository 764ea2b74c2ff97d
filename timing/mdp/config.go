package mdp

import "fmt"

// Config sizes the predictor structures.
type Config struct {
	// WindowSize is the number of in-flight instruction slots (IBQ).
	// Default: 64.
	WindowSize int `json:"window_size" yaml:"window_size"`

	// PredictorSize is the number of MDPT entries. Default: 64.
	PredictorSize int `json:"predictor_size" yaml:"predictor_size"`

	// SyncSize is the number of MDST rows. Default: 64.
	SyncSize int `json:"sync_size" yaml:"sync_size"`

	// StoreResolveLatency is the number of cycles between a store entering
	// the window and its address and value becoming final. Default: 10.
	StoreResolveLatency int `json:"store_resolve_latency" yaml:"store_resolve_latency"`
}

// DefaultConfig returns the 64-entry, 10-cycle configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:          64,
		PredictorSize:       64,
		SyncSize:            64,
		StoreResolveLatency: 10,
	}
}

// Validate checks that every structure has room and that a store always
// resolves before it leaves the window.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be > 0")
	}
	if c.PredictorSize <= 0 {
		return fmt.Errorf("predictor_size must be > 0")
	}
	if c.SyncSize <= 0 {
		return fmt.Errorf("sync_size must be > 0")
	}
	if c.StoreResolveLatency <= 0 {
		return fmt.Errorf("store_resolve_latency must be > 0")
	}
	if c.StoreResolveLatency >= c.WindowSize {
		return fmt.Errorf("store_resolve_latency must be < window_size")
	}
	return nil
}
