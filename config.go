// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"time"
)

type BrokerConfig struct {
	MinRoomIDLength int
	MaxRoomIDLength int
	MaxMembers      int

	// Rooms idle for longer than RoomExpiration are removed by the sweep,
	// which runs every SweepInterval.
	RoomExpiration time.Duration
	SweepInterval  time.Duration

	MaxMessageSize int64

	// A connection that leaves HeartbeatMissThreshold consecutive pings
	// unanswered is terminated on the next heartbeat tick.
	HeartbeatInterval      time.Duration
	HeartbeatMissThreshold int

	SendBufferSize int
	WriteTimeout   time.Duration
	AllowedOrigins []string

	// Zero disables the respective connection cap.
	MaxConnections      int
	MaxConnectionsPerIP int
}

type RateLimiterConfig struct {
	PerClientRate          float64
	PerClientBurst         int
	MaxRateLimitViolations int
	CleanupInterval        time.Duration
	EntryTTL               time.Duration
}

func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		MinRoomIDLength:        4,
		MaxRoomIDLength:        20,
		MaxMembers:             50,
		RoomExpiration:         24 * time.Hour,
		SweepInterval:          time.Hour,
		MaxMessageSize:         1024 * 1024,
		HeartbeatInterval:      30 * time.Second,
		HeartbeatMissThreshold: 1,
		SendBufferSize:         256,
		WriteTimeout:           10 * time.Second,
	}
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		PerClientRate:          20,
		PerClientBurst:         40,
		MaxRateLimitViolations: 10,
		CleanupInterval:        time.Minute,
		EntryTTL:               10 * time.Minute,
	}
}

type Option func(*Broker) error

// WithRoomIDLength sets the inclusive bounds for room id length.
func WithRoomIDLength(min, max int) Option {
	return func(b *Broker) error {
		if min <= 0 || max < min {
			return ErrInvalidRoomIDBounds
		}
		b.config.MinRoomIDLength = min
		b.config.MaxRoomIDLength = max
		return nil
	}
}

func WithMaxMembers(n int) Option {
	return func(b *Broker) error {
		if n <= 0 {
			return ErrInvalidMaxMembers
		}
		b.config.MaxMembers = n
		return nil
	}
}

// WithRoomExpiration sets the inactivity window after which rooms are
// removed, and how often the sweep checks for them.
func WithRoomExpiration(expiration, sweepInterval time.Duration) Option {
	return func(b *Broker) error {
		if expiration <= 0 || sweepInterval <= 0 {
			return ErrExpirationLessThanOne
		}
		b.config.RoomExpiration = expiration
		b.config.SweepInterval = sweepInterval
		return nil
	}
}

// WithSweepInterval changes how often the sweep runs, keeping the
// expiration window.
func WithSweepInterval(interval time.Duration) Option {
	return func(b *Broker) error {
		if interval <= 0 {
			return ErrExpirationLessThanOne
		}
		b.config.SweepInterval = interval
		return nil
	}
}

func WithMaxMessageSize(size int64) Option {
	return func(b *Broker) error {
		if size <= 0 {
			return ErrMessageSizeLessThanOne
		}
		b.config.MaxMessageSize = size
		return nil
	}
}

// WithHeartbeat sets the ping period and the number of unanswered pings
// tolerated before a connection is terminated.
func WithHeartbeat(interval time.Duration, missThreshold int) Option {
	return func(b *Broker) error {
		if interval <= 0 {
			return ErrHeartbeatLessThanOne
		}
		if missThreshold <= 0 {
			return ErrMissThresholdLessThanOne
		}
		b.config.HeartbeatInterval = interval
		b.config.HeartbeatMissThreshold = missThreshold
		return nil
	}
}

func WithSendBuffer(size int, writeTimeout time.Duration) Option {
	return func(b *Broker) error {
		if size <= 0 || writeTimeout <= 0 {
			return ErrSendBufferLessThanOne
		}
		b.config.SendBufferSize = size
		b.config.WriteTimeout = writeTimeout
		return nil
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// An empty list accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(b *Broker) error {
		b.config.AllowedOrigins = origins
		return nil
	}
}

func WithMaxConnections(total, perIP int) Option {
	return func(b *Broker) error {
		b.config.MaxConnections = total
		b.config.MaxConnectionsPerIP = perIP
		return nil
	}
}

func WithRateLimit(config RateLimiterConfig) Option {
	return func(b *Broker) error {
		if config.PerClientRate <= 0 || config.PerClientBurst <= 0 {
			return ErrInvalidRateLimit
		}
		if config.CleanupInterval <= 0 {
			config.CleanupInterval = time.Minute
		}
		if config.EntryTTL <= 0 {
			config.EntryTTL = 10 * time.Minute
		}
		b.rateConfig = &config
		return nil
	}
}

// WithLogger replaces the logger while keeping the configured levels.
func WithLogger(logger Logger) Option {
	return func(b *Broker) error {
		if logger == nil {
			return ErrLoggerNil
		}
		b.logger.Logger = logger
		return nil
	}
}

func WithLoggerConfig(config *LoggerConfig) Option {
	return func(b *Broker) error {
		if config == nil || config.Logger == nil {
			return ErrLoggerNil
		}
		b.logger = config
		return nil
	}
}

// WithKeyStore sets where registered public keys are kept.
func WithKeyStore(store KeyStore) Option {
	return func(b *Broker) error {
		if store == nil {
			return ErrKeyStoreNil
		}
		b.keys = store
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(b *Broker) error {
		b.metrics = m
		return nil
	}
}

// WithClock overrides the time source used for timestamps and expiration.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) error {
		if now != nil {
			b.now = now
		}
		return nil
	}
}
