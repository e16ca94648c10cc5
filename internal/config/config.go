// Package config defines the process configuration for the simulation
// binaries and its layered loading (defaults, YAML file, environment).
package config

import "runtime"

// InstrumentConfig describes one band's instrument parameters.
type InstrumentConfig struct {
	Gain     float64  `koanf:"gain"`
	ZP       float64  `koanf:"zp"`
	ZPSys    string   `koanf:"zpsys"`
	ErrCalib *float64 `koanf:"err_calib"`
}

// PlanConfig describes where the observation plan comes from.
type PlanConfig struct {
	// OpsimPath points at an opsim-style SQLite file. Empty means the
	// binary builds no plan from file.
	OpsimPath string `koanf:"opsim_path"`
	// OpsimTable is the summary table name inside the opsim file.
	OpsimTable string `koanf:"opsim_table"`
	// ZP is the zero point for the depth to sky-noise conversion.
	ZP float64 `koanf:"zp"`
	// DefaultDepth substitutes for missing 5-sigma depths.
	DefaultDepth float64 `koanf:"default_depth"`
	// FieldWidth and FieldHeight are the field footprint dimensions in
	// degrees.
	FieldWidth  float64 `koanf:"field_width"`
	FieldHeight float64 `koanf:"field_height"`
	// BandMap translates opsim filter names into instrument bands.
	BandMap map[string]string `koanf:"band_map"`
}

// GeneratorConfig describes the transient population draw.
type GeneratorConfig struct {
	Count          int     `koanf:"count"`
	RAMin          float64 `koanf:"ra_min"`
	RAMax          float64 `koanf:"ra_max"`
	DecMin         float64 `koanf:"dec_min"`
	DecMax         float64 `koanf:"dec_max"`
	ZMin           float64 `koanf:"z_min"`
	ZMax           float64 `koanf:"z_max"`
	EpochMin       float64 `koanf:"epoch_min"`
	EpochMax       float64 `koanf:"epoch_max"`
	AmplitudeMean  float64 `koanf:"amplitude_mean"`
	AmplitudeSigma float64 `koanf:"amplitude_sigma"`
	MWEBV          float64 `koanf:"mwebv"`
	Seed           int64   `koanf:"seed"`
}

// ModelConfig describes the Gaussian burst brightness model.
type ModelConfig struct {
	Width      float64            `koanf:"width"`
	Throughput map[string]float64 `koanf:"throughput"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr exposes /metrics while the run is in flight. Empty
	// disables the endpoint.
	MetricsAddr string `koanf:"metrics_addr"`

	// Workers bounds concurrent per-transient realizations.
	Workers int `koanf:"workers"`
	// Seed makes the run reproducible when non-zero.
	Seed int64 `koanf:"seed"`

	// OutputPath is where the realized lightcurve collection is saved.
	OutputPath string `koanf:"output_path"`

	Plan      PlanConfig      `koanf:"plan"`
	Generator GeneratorConfig `koanf:"generator"`
	Model     ModelConfig     `koanf:"model"`

	// Instruments configures one entry per band.
	Instruments map[string]InstrumentConfig `koanf:"instruments"`

	// BlindedBias maps bands to half-widths of the hidden uniform
	// zero-point bias draw. Empty disables blinding.
	BlindedBias map[string]float64 `koanf:"blinded_bias"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		LogLevel:   "info",
		Workers:    runtime.NumCPU(),
		OutputPath: "lightcurves.slc",
		Plan: PlanConfig{
			OpsimTable:   "Summary",
			ZP:           30,
			DefaultDepth: 23,
			FieldWidth:   7,
			FieldHeight:  7,
		},
		Generator: GeneratorConfig{
			Count:         1000,
			RAMax:         360,
			DecMin:        -90,
			DecMax:        90,
			ZMin:          0,
			ZMax:          0.2,
			EpochMin:      58000,
			EpochMax:      58100,
			AmplitudeMean: 100,
		},
		Model: ModelConfig{Width: 10},
		Instruments: map[string]InstrumentConfig{
			"g": {Gain: 1, ZP: 30, ZPSys: "ab"},
			"r": {Gain: 1, ZP: 30, ZPSys: "ab"},
		},
	}
}
