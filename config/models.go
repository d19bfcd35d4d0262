package config

import "time"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	WSPort          int           `mapstructure:"wsPort"`
	APIPort         int           `mapstructure:"apiPort"`
	Path            string        `mapstructure:"path"`
	PortFallback    bool          `mapstructure:"portFallback"`
	PortAttempts    int           `mapstructure:"portAttempts"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	PublicWSURL     string        `mapstructure:"publicWsUrl"`
}

type BrokerConfig struct {
	MinRoomIDLength        int           `mapstructure:"minRoomIdLength"`
	MaxRoomIDLength        int           `mapstructure:"maxRoomIdLength"`
	MaxMembers             int           `mapstructure:"maxMembers"`
	RoomExpiration         time.Duration `mapstructure:"roomExpiration"`
	SweepInterval          time.Duration `mapstructure:"sweepInterval"`
	MaxMessageSize         int64         `mapstructure:"maxMessageSize"`
	HeartbeatInterval      time.Duration `mapstructure:"heartbeatInterval"`
	HeartbeatMissThreshold int           `mapstructure:"heartbeatMissThreshold"`
	SendBufferSize         int           `mapstructure:"sendBufferSize"`
	WriteTimeout           time.Duration `mapstructure:"writeTimeout"`
	MaxConnections         int           `mapstructure:"maxConnections"`
	MaxConnectionsPerIP    int           `mapstructure:"maxConnectionsPerIp"`
}

type RateLimitConfig struct {
	Rate          float64 `mapstructure:"rate"`
	Burst         int     `mapstructure:"burst"`
	MaxViolations int     `mapstructure:"maxViolations"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error or none
	Format string `mapstructure:"format"` // json or text
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
