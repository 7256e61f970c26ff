package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// fileConfig mirrors Config's HCL-tagged fields plus a string form of the
// keep-alive period, since time.Duration has no native HCL representation.
type fileConfig struct {
	TrainingDirectory         string `hcl:"training_directory,optional"`
	StartIteration            int    `hcl:"start_iteration,optional"`
	EndIteration              int    `hcl:"end_iteration,optional"`
	GamesPerIteration         int    `hcl:"games_per_iteration,optional"`
	ReplayBufferWindow        int    `hcl:"replay_buffer_window,optional"`
	WeightFileName            string `hcl:"weight_file_name,optional"`
	AcceptDifferentModelGames bool   `hcl:"accept_different_model_games,optional"`
	Seed                      int64  `hcl:"seed,optional"`
	AutoSeed                  bool   `hcl:"auto_seed,optional"`
	KeepAlivePeriod           string `hcl:"keep_alive_period,optional"`
}

// LoadFile loads a Config from an HCL file, falling back to DefaultConfig
// when the file does not exist. CLI flags are expected to override the
// result afterward (see cmd/zeroserver).
func LoadFile(filename string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return cfg, nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("config: parse %s: %s", filename, diags.Error())
	}

	var parsed fileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return Config{}, fmt.Errorf("config: decode %s: %s", filename, diags.Error())
	}

	applyFileConfig(&cfg, parsed)
	return cfg, nil
}

func applyFileConfig(cfg *Config, parsed fileConfig) {
	if parsed.TrainingDirectory != "" {
		cfg.TrainingDirectory = parsed.TrainingDirectory
	}
	if parsed.StartIteration != 0 {
		cfg.StartIteration = parsed.StartIteration
	}
	if parsed.EndIteration != 0 {
		cfg.EndIteration = parsed.EndIteration
	}
	if parsed.GamesPerIteration != 0 {
		cfg.GamesPerIteration = parsed.GamesPerIteration
	}
	if parsed.ReplayBufferWindow != 0 {
		cfg.ReplayBufferWindow = parsed.ReplayBufferWindow
	}
	if parsed.WeightFileName != "" {
		cfg.WeightFileName = parsed.WeightFileName
	}
	cfg.AcceptDifferentModelGames = parsed.AcceptDifferentModelGames
	if parsed.Seed != 0 {
		cfg.Seed = parsed.Seed
		cfg.AutoSeed = false
	}
	if parsed.KeepAlivePeriod != "" {
		if d, err := time.ParseDuration(parsed.KeepAlivePeriod); err == nil {
			cfg.KeepAlivePeriod = d
		}
	}
}
