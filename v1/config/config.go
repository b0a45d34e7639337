// Package config holds the process configuration for lockd. It is read once
// at startup; the selected backend is fixed for the process lifetime.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// StorageType selects the lock store backend.
type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageRedis  StorageType = "redis"
)

// RedisConfig carries connection parameters for the redis backend.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// MemoryConfig carries housekeeping parameters for the in-memory backend.
type MemoryConfig struct {
	PersistEnabled  bool
	PersistPath     string
	PersistInterval time.Duration
	SweepInterval   time.Duration
}

// Config is the full lockd configuration.
type Config struct {
	Storage StorageType
	Redis   RedisConfig
	Memory  MemoryConfig

	Host string
	Port int

	Trace bool
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis:
	default:
		return fmt.Errorf("config: unknown storage type %q (must be memory or redis)", c.Storage)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Storage == StorageRedis && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis storage selected but no redis address given")
	}
	if c.Storage == StorageMemory && c.Memory.PersistEnabled {
		if c.Memory.PersistPath == "" {
			return fmt.Errorf("config: persistence enabled but no path given")
		}
		if c.Memory.PersistInterval <= 0 {
			return fmt.Errorf("config: persistence interval must be positive")
		}
	}
	if c.Storage == StorageMemory && c.Memory.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep interval must be positive")
	}
	return nil
}

// String returns a formatted representation of the configuration. The redis
// password is never printed.
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(title))
		sb.WriteString("\n")
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-18s: %s\n", name, value))
	}

	addSection("Server")
	addField("Listen", c.ListenAddr())
	addField("Tracing", strconv.FormatBool(c.Trace))

	addSection("Storage")
	addField("Backend", string(c.Storage))

	switch c.Storage {
	case StorageRedis:
		addField("Redis Addr", c.Redis.Addr)
		if c.Redis.Username != "" {
			addField("Redis User", c.Redis.Username)
		}
		addField("Redis DB", strconv.Itoa(c.Redis.DB))
	case StorageMemory:
		addField("Sweep Interval", c.Memory.SweepInterval.String())
		addField("Persistence", strconv.FormatBool(c.Memory.PersistEnabled))
		if c.Memory.PersistEnabled {
			addField("Persist Path", c.Memory.PersistPath)
			addField("Persist Interval", c.Memory.PersistInterval.String())
		}
	}
	return sb.String()
}
