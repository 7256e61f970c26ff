// Package config holds the immutable configuration for a single training run.
package config

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is populated once, before the server starts, and never mutated
// for the life of a run.
type Config struct {
	TrainingDirectory         string        `hcl:"training_directory,optional"`
	StartIteration            int           `hcl:"start_iteration,optional"`
	EndIteration              int           `hcl:"end_iteration,optional"`
	GamesPerIteration         int           `hcl:"games_per_iteration,optional"`
	ReplayBufferWindow        int           `hcl:"replay_buffer_window,optional"`
	WeightFileName            string        `hcl:"weight_file_name,optional"`
	AcceptDifferentModelGames bool          `hcl:"accept_different_model_games,optional"`
	Seed                      int64         `hcl:"seed,optional"`
	AutoSeed                  bool          `hcl:"auto_seed,optional"`
	KeepAlivePeriod           time.Duration `hcl:"-"`
}

// DefaultConfig returns a config with the same defaults zero_server.cpp ships with.
func DefaultConfig() Config {
	return Config{
		TrainingDirectory:         ".",
		StartIteration:            1,
		EndIteration:              1,
		GamesPerIteration:         100,
		ReplayBufferWindow:        1,
		WeightFileName:            "weight_iter_0.pt",
		AcceptDifferentModelGames: false,
		AutoSeed:                  true,
		KeepAlivePeriod:           time.Minute,
	}
}

// Validate rejects configurations the controller could not run.
func (c Config) Validate() error {
	if c.TrainingDirectory == "" {
		return fmt.Errorf("config: training directory must be set")
	}
	if c.EndIteration < c.StartIteration {
		return fmt.Errorf("config: end iteration %d is before start iteration %d", c.EndIteration, c.StartIteration)
	}
	if c.GamesPerIteration <= 0 {
		return fmt.Errorf("config: games per iteration must be positive, got %d", c.GamesPerIteration)
	}
	if c.ReplayBufferWindow <= 0 {
		return fmt.Errorf("config: replay buffer window must be positive, got %d", c.ReplayBufferWindow)
	}
	if c.KeepAlivePeriod <= 0 {
		return fmt.Errorf("config: keep-alive period must be positive, got %s", c.KeepAlivePeriod)
	}
	if _, err := ParseModelIteration(c.WeightFileName); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewRand seeds a RNG from the config, auto-seeding from wall clock when requested.
func (c Config) NewRand() *rand.Rand {
	seed := c.Seed
	if c.AutoSeed {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

const weightIterMarker = "weight_iter_"

// ParseModelIteration extracts the integer between "weight_iter_" and the
// following "." in a weight filename, e.g. "weight_iter_42.pt" -> 42.
func ParseModelIteration(weightFileName string) (int, error) {
	idx := strings.Index(weightFileName, weightIterMarker)
	if idx == -1 {
		return 0, fmt.Errorf("weight filename %q does not contain %q", weightFileName, weightIterMarker)
	}
	rest := weightFileName[idx+len(weightIterMarker):]
	end := strings.Index(rest, ".")
	if end == -1 {
		end = len(rest)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, fmt.Errorf("weight filename %q has a non-integer iteration: %w", weightFileName, err)
	}
	return n, nil
}

// WeightPath returns the path to the .pt weight file for a given model iteration.
func (c Config) WeightPath(modelIteration int) string {
	return filepath.Join(c.TrainingDirectory, "model", fmt.Sprintf("weight_iter_%d.pt", modelIteration))
}

// RecordFilePath returns the path to the sgf record file for a given
// training iteration, under TrainingDirectory's sgf subdirectory.
func (c Config) RecordFilePath(iteration int) string {
	return filepath.Join(c.TrainingDirectory, "sgf", fmt.Sprintf("%d.sgf", iteration))
}
