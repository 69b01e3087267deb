package dispatch

import "time"

// HashAlgorithm names the ring's hash function. It is fixed at build time;
// Dispatch ships only the MurmurHash3 x64 implementation.
type HashAlgorithm string

const HashAlgorithmMurmur3 HashAlgorithm = "murmur3_x64"

// Config holds the enumerated options from the registry's external
// interface. New replaces any zero or negative field with DefaultConfig's
// value, so a zero-value Config is usable; DefaultConfig returns those
// same values for callers that want to override individual fields.
type Config struct {
	// BroadcastPeriod is the heartbeat tick interval.
	BroadcastPeriod time.Duration `yaml:"broadcast_period"`

	// MaxSilentPeriods is the peer expiry horizon, expressed in ticks.
	MaxSilentPeriods int `yaml:"max_silent_periods"`

	// VnodesPerEndpoint is the ring replication factor.
	VnodesPerEndpoint int `yaml:"vnodes_per_endpoint"`

	// DefaultTimeout is the documented default Call/MultiCall deadline.
	// New does not pass it to any Client: a Client's deadline, when the
	// caller supplies none, is the defaultTimeout given to NewClient, or
	// DefaultConfig's value when that is not positive.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// HashAlgorithm is fixed at build time and recorded here for
	// observability only; changing it has no effect.
	HashAlgorithm HashAlgorithm `yaml:"hash_algorithm"`
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		BroadcastPeriod:   1500 * time.Millisecond,
		MaxSilentPeriods:  20,
		VnodesPerEndpoint: 128,
		DefaultTimeout:    5 * time.Second,
		HashAlgorithm:     HashAlgorithmMurmur3,
	}
}

// ExpiryHorizon is the duration of silence after which a peer's entries
// are expired: max_silent_periods * broadcast_period.
func (c Config) ExpiryHorizon() time.Duration {
	return time.Duration(c.MaxSilentPeriods) * c.BroadcastPeriod
}
