// Package config loads the broker process configuration from an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/FilipeJohansson/roomsocket"
	"github.com/FilipeJohansson/roomsocket/api"
	"github.com/FilipeJohansson/roomsocket/server"
)

const envPrefix = "ROOMSOCKET"

// Load reads configuration from path and environment variables. An empty
// path looks for roomsocket.yaml in the working directory. A missing file
// is not an error.
//
// Every key can be set as ROOMSOCKET_<SECTION>_<KEY>, e.g.
// ROOMSOCKET_BROKER_MAXMEMBERS. WS_PORT and API_PORT are also honored.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("roomsocket")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("server.wsPort", envPrefix+"_SERVER_WSPORT", "WS_PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("server.apiPort", envPrefix+"_SERVER_APIPORT", "API_PORT"); err != nil {
		return nil, err
	}

	source := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		source = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	b := roomsocket.DefaultBrokerConfig()
	rl := roomsocket.DefaultRateLimiterConfig()
	s := server.DefaultServerConfig()

	v.SetDefault("server.host", s.Host)
	v.SetDefault("server.wsPort", s.WSPort)
	v.SetDefault("server.apiPort", s.APIPort)
	v.SetDefault("server.path", s.Path)
	v.SetDefault("server.portFallback", s.PortFallback)
	v.SetDefault("server.portAttempts", s.PortAttempts)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", s.ShutdownTimeout)
	v.SetDefault("server.publicWsUrl", "")

	v.SetDefault("broker.minRoomIdLength", b.MinRoomIDLength)
	v.SetDefault("broker.maxRoomIdLength", b.MaxRoomIDLength)
	v.SetDefault("broker.maxMembers", b.MaxMembers)
	v.SetDefault("broker.roomExpiration", b.RoomExpiration)
	v.SetDefault("broker.sweepInterval", b.SweepInterval)
	v.SetDefault("broker.maxMessageSize", b.MaxMessageSize)
	v.SetDefault("broker.heartbeatInterval", b.HeartbeatInterval)
	v.SetDefault("broker.heartbeatMissThreshold", b.HeartbeatMissThreshold)
	v.SetDefault("broker.sendBufferSize", b.SendBufferSize)
	v.SetDefault("broker.writeTimeout", b.WriteTimeout)
	v.SetDefault("broker.maxConnections", b.MaxConnections)
	v.SetDefault("broker.maxConnectionsPerIp", b.MaxConnectionsPerIP)

	v.SetDefault("rateLimit.rate", rl.PerClientRate)
	v.SetDefault("rateLimit.burst", rl.PerClientBurst)
	v.SetDefault("rateLimit.maxViolations", rl.MaxRateLimitViolations)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "roomsocket:public_keys")

	v.SetDefault("metrics.enabled", true)
}

// Validate checks the values the options below do not validate themselves.
func (c *Config) Validate() error {
	for name, port := range map[string]int{"server.wsPort": c.Server.WSPort, "server.apiPort": c.Server.APIPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %d", name, port)
		}
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}

// LogLevel returns the broker log level for Log.Level.
func (c *Config) LogLevel() roomsocket.LogLevel {
	level, _ := parseLevel(c.Log.Level)
	return level
}

// SlogLevel returns the slog handler level for Log.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel() {
	case roomsocket.LogLevelDebug:
		return slog.LevelDebug
	case roomsocket.LogLevelWarn:
		return slog.LevelWarn
	case roomsocket.LogLevelError, roomsocket.LogLevelNone:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseLevel(s string) (roomsocket.LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return roomsocket.LogLevelDebug, nil
	case "", "info":
		return roomsocket.LogLevelInfo, nil
	case "warn", "warning":
		return roomsocket.LogLevelWarn, nil
	case "error":
		return roomsocket.LogLevelError, nil
	case "none", "off":
		return roomsocket.LogLevelNone, nil
	}
	return roomsocket.LogLevelNone, fmt.Errorf("log.level: unknown level %q", s)
}

// BrokerOptions translates the broker and rate limit sections.
func (c *Config) BrokerOptions() []roomsocket.Option {
	b := c.Broker
	opts := []roomsocket.Option{
		roomsocket.WithRoomIDLength(b.MinRoomIDLength, b.MaxRoomIDLength),
		roomsocket.WithMaxMembers(b.MaxMembers),
		roomsocket.WithRoomExpiration(b.RoomExpiration, b.SweepInterval),
		roomsocket.WithMaxMessageSize(b.MaxMessageSize),
		roomsocket.WithHeartbeat(b.HeartbeatInterval, b.HeartbeatMissThreshold),
		roomsocket.WithSendBuffer(b.SendBufferSize, b.WriteTimeout),
		roomsocket.WithMaxConnections(b.MaxConnections, b.MaxConnectionsPerIP),
		roomsocket.WithRateLimit(roomsocket.RateLimiterConfig{
			PerClientRate:          c.RateLimit.Rate,
			PerClientBurst:         c.RateLimit.Burst,
			MaxRateLimitViolations: c.RateLimit.MaxViolations,
		}),
	}
	if origins := allowedOrigins(c.Server.AllowedOrigins); len(origins) > 0 {
		opts = append(opts, roomsocket.WithAllowedOrigins(origins))
	}
	return opts
}

// ServerOptions translates the server section. Extra API options are
// passed through to the query API.
func (c *Config) ServerOptions(apiOptions ...api.Option) []server.Option {
	s := c.Server
	opts := []server.Option{
		server.WithHost(s.Host),
		server.WithPorts(s.WSPort, s.APIPort),
		server.WithPath(s.Path),
		server.WithPortFallback(s.PortFallback, s.PortAttempts),
		server.WithShutdownTimeout(s.ShutdownTimeout),
	}
	if len(s.AllowedOrigins) > 0 {
		apiOptions = append(apiOptions, api.WithAllowedOrigins(s.AllowedOrigins))
	}
	if s.PublicWSURL != "" {
		apiOptions = append(apiOptions, api.WithWebSocketURL(s.PublicWSURL))
	}
	if len(apiOptions) > 0 {
		opts = append(opts, server.WithAPIOptions(apiOptions...))
	}
	return opts
}

// allowedOrigins drops the wildcard, which the broker expresses as an
// empty list.
func allowedOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			return nil
		}
		out = append(out, o)
	}
	return out
}
