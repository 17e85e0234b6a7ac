// Package envconfig reads the engine's configuration from the
// environment.
package envconfig

import (
	"os"
	"strconv"
)

// Bool returns a function reporting whether key is set to a truthy
// value. Any value that does not parse as a bool counts as true, so
// OUTLINES_DEBUG=yes behaves like OUTLINES_DEBUG=1.
func Bool(key string) func() bool {
	return func() bool {
		s := os.Getenv(key)
		if s == "" {
			return false
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return true
		}
		return b
	}
}

// Uint returns a function reading key as an unsigned integer, falling
// back to defaultValue when unset or unparseable.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		s := os.Getenv(key)
		if s == "" {
			return defaultValue
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return defaultValue
		}
		return uint(v)
	}
}

// String returns a function reading key as-is.
func String(key string) func() string {
	return func() string {
		return os.Getenv(key)
	}
}

var (
	// Debug enables debug logging. Set via OUTLINES_DEBUG.
	Debug = Bool("OUTLINES_DEBUG")
	// CacheEntries caps the number of compiled indices kept in
	// memory. Set via OUTLINES_CACHE_ENTRIES.
	CacheEntries = Uint("OUTLINES_CACHE_ENTRIES", 32)
	// Workers bounds the goroutines used while building an index;
	// zero means one per CPU. Set via OUTLINES_WORKERS.
	Workers = Uint("OUTLINES_WORKERS", 0)
	// IndexDir, when set, persists compiled indices for reuse across
	// process restarts. Set via OUTLINES_INDEX_DIR.
	IndexDir = String("OUTLINES_INDEX_DIR")
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"OUTLINES_DEBUG":         {"OUTLINES_DEBUG", Debug(), "Show additional debug information (e.g. OUTLINES_DEBUG=1)"},
		"OUTLINES_CACHE_ENTRIES": {"OUTLINES_CACHE_ENTRIES", CacheEntries(), "Maximum number of compiled indices kept in memory (default 32)"},
		"OUTLINES_WORKERS":       {"OUTLINES_WORKERS", Workers(), "Goroutines used to build an index (default: one per CPU)"},
		"OUTLINES_INDEX_DIR":     {"OUTLINES_INDEX_DIR", IndexDir(), "Directory for persisted indices (default: disabled)"},
	}
}
