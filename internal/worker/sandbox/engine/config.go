package engine

import "time"

// Config controls how the engine talks to the container daemon and the
// safety margins applied around a container's wall-clock budget.
type Config struct {
	// SocketPath is the path to the container engine's local unix socket.
	SocketPath string
	// APIVersion pins the container engine API version negotiated on connect.
	APIVersion string
	// StdoutStderrMaxBytes caps how much of a container's combined logs are
	// read back into memory; excess is truncated, never buffered unbounded.
	StdoutStderrMaxBytes int64
	// WallClockSafetyFactor multiplies CPUTimeMs to derive the wall-clock
	// timeout; must be >= 2.0.
	WallClockSafetyFactor float64
	// WallClockFixedOverhead is added on top of the scaled cpu time; must be
	// >= 1s.
	WallClockFixedOverhead time.Duration
	// DefaultWallTimeout is used for stages whose limits carry neither a
	// wall time nor a cpu_time_limit (the compile stage; a checker only when
	// its configured limits set no cpu time).
	DefaultWallTimeout time.Duration
}

// Normalized returns a copy of cfg with its required minimum floors applied.
func (c Config) Normalized() Config {
	if c.WallClockSafetyFactor < 2.0 {
		c.WallClockSafetyFactor = 2.0
	}
	if c.WallClockFixedOverhead < time.Second {
		c.WallClockFixedOverhead = time.Second
	}
	if c.DefaultWallTimeout <= 0 {
		c.DefaultWallTimeout = 60 * time.Second
	}
	if c.APIVersion == "" {
		c.APIVersion = "1.43"
	}
	return c
}
