package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the host listens on.
	DefaultAddr = ":5555"
	// DefaultMaxPlayers bounds concurrent live sessions.
	DefaultMaxPlayers = 4
	// DefaultTickRate is the broadcast frequency in full snapshots per second.
	DefaultTickRate = 30
	// DefaultAcceptTimeout bounds each blocking Accept so shutdown can be observed.
	DefaultAcceptTimeout = time.Second
	// DefaultReadTimeout bounds each blocking frame read on a session.
	DefaultReadTimeout = 5 * time.Second
	// DefaultWriteTimeout bounds each frame write.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultMaxFrameBytes limits inbound frame size.
	DefaultMaxFrameBytes = 1 << 20

	// DefaultLogLevel controls verbosity for host and client logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "netplay.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultSpectatorRate limits spectator websocket upgrades per second.
	DefaultSpectatorRate = 4.0
	// DefaultSpectatorBurst allows short bursts of spectator upgrades.
	DefaultSpectatorBurst = 8
)

// Config captures all runtime tunables for the netplay host and client.
type Config struct {
	Address        string
	MaxPlayers     int
	TickRate       int
	AcceptTimeout  time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxFrameBytes  int64
	Logging        LoggingConfig
	ReplayDir      string
	OpsAddress     string
	SpectatorRate  float64
	SpectatorBurst int
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TickPeriod converts the configured tick rate into a broadcast period.
func (c *Config) TickPeriod() time.Duration {
	rate := c.TickRate
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return time.Second / time.Duration(rate)
}

// Load reads the netplay configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:       getString("NETPLAY_ADDR", DefaultAddr),
		MaxPlayers:    DefaultMaxPlayers,
		TickRate:      DefaultTickRate,
		AcceptTimeout: DefaultAcceptTimeout,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		MaxFrameBytes: DefaultMaxFrameBytes,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("NETPLAY_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("NETPLAY_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		ReplayDir:      strings.TrimSpace(os.Getenv("NETPLAY_REPLAY_DIR")),
		OpsAddress:     strings.TrimSpace(os.Getenv("NETPLAY_OPS_ADDR")),
		SpectatorRate:  DefaultSpectatorRate,
		SpectatorBurst: DefaultSpectatorBurst,
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_MAX_PLAYERS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_MAX_PLAYERS must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPlayers = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_TICK_RATE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_TICK_RATE must be a positive integer, got %q", raw))
		} else {
			cfg.TickRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_ACCEPT_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_ACCEPT_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.AcceptTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_READ_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_READ_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.ReadTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_WRITE_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_WRITE_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.WriteTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_MAX_FRAME_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_MAX_FRAME_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxFrameBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("NETPLAY_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_SPECTATOR_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_SPECTATOR_RATE must be a positive number, got %q", raw))
		} else {
			cfg.SpectatorRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("NETPLAY_SPECTATOR_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("NETPLAY_SPECTATOR_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.SpectatorBurst = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
