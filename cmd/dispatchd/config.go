package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/VoiceLayer/dispatch"
)

// fileConfig is the on-disk shape of a dispatchd config file: cluster
// identity, the HTTP gossip listener/peer table, and the registry's tuning
// parameters from dispatch.Config.
type fileConfig struct {
	NodeID     string            `yaml:"node_id"`
	ListenAddr string            `yaml:"listen_addr"`
	Peers      map[string]string `yaml:"peers"` // node_id -> base URL

	BroadcastPeriod   time.Duration `yaml:"broadcast_period"`
	MaxSilentPeriods  int           `yaml:"max_silent_periods"`
	VnodesPerEndpoint int           `yaml:"vnodes_per_endpoint"`
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
}

// loadFileConfig reads path, filling in dispatch.DefaultConfig's values for
// any tuning parameter left at its zero value.
func loadFileConfig(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileConfig{}, fmt.Errorf("config file %q not found", path)
		}
		return fileConfig{}, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	if fc.NodeID == "" {
		return fileConfig{}, fmt.Errorf("config: node_id is required")
	}

	defaults := dispatch.DefaultConfig()
	if fc.BroadcastPeriod == 0 {
		fc.BroadcastPeriod = defaults.BroadcastPeriod
	}
	if fc.MaxSilentPeriods == 0 {
		fc.MaxSilentPeriods = defaults.MaxSilentPeriods
	}
	if fc.VnodesPerEndpoint == 0 {
		fc.VnodesPerEndpoint = defaults.VnodesPerEndpoint
	}
	if fc.DefaultTimeout == 0 {
		fc.DefaultTimeout = defaults.DefaultTimeout
	}
	if fc.ListenAddr == "" {
		fc.ListenAddr = ":7946"
	}
	return fc, nil
}

func (fc fileConfig) registryConfig() dispatch.Config {
	return dispatch.Config{
		BroadcastPeriod:   fc.BroadcastPeriod,
		MaxSilentPeriods:  fc.MaxSilentPeriods,
		VnodesPerEndpoint: fc.VnodesPerEndpoint,
		DefaultTimeout:    fc.DefaultTimeout,
		HashAlgorithm:     dispatch.HashAlgorithmMurmur3,
	}
}
