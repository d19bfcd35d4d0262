// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"context"
	"fmt"
	"log/slog"
)

type LogType string

const (
	LogTypeServer     LogType = "server"     // for server events
	LogTypeClient     LogType = "client"     // for client events
	LogTypeRoom       LogType = "room"       // for room registry mutations
	LogTypeBroadcast  LogType = "broadcast"  // for messages sent to multiple clients
	LogTypeConnection LogType = "connection" // for connection events
	LogTypeMessage    LogType = "message"    // for messages sent and received
	LogTypeHeartbeat  LogType = "heartbeat"  // for liveness probes
	LogTypeSweep      LogType = "sweep"      // for room expiration
	LogTypeError      LogType = "error"      // for internal errors and connection errors
	LogTypeRateLimit  LogType = "ratelimit"  // for rate limit events
	LogTypeAPI        LogType = "api"        // for the query interface
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

type Logger interface {
	Log(logType LogType, level LogLevel, msg string, args ...interface{})
}

// LoggerConfig pairs a Logger with the maximum level emitted per log type.
// Types missing from Level are silent.
type LoggerConfig struct {
	Logger Logger
	Level  map[LogType]LogLevel
}

func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Logger: NewSlogLogger(slog.Default()),
		Level: map[LogType]LogLevel{
			LogTypeServer:     LogLevelInfo,
			LogTypeClient:     LogLevelInfo,
			LogTypeRoom:       LogLevelInfo,
			LogTypeBroadcast:  LogLevelWarn,
			LogTypeConnection: LogLevelInfo,
			LogTypeMessage:    LogLevelWarn,
			LogTypeHeartbeat:  LogLevelInfo,
			LogTypeSweep:      LogLevelInfo,
			LogTypeError:      LogLevelError,
			LogTypeRateLimit:  LogLevelWarn,
			LogTypeAPI:        LogLevelInfo,
		},
	}
}

// SetLevel sets the same level for every known log type.
func (c *LoggerConfig) SetLevel(level LogLevel) {
	if c.Level == nil {
		c.Level = make(map[LogType]LogLevel)
	}
	for _, t := range []LogType{
		LogTypeServer, LogTypeClient, LogTypeRoom, LogTypeBroadcast, LogTypeConnection,
		LogTypeMessage, LogTypeHeartbeat, LogTypeSweep, LogTypeError, LogTypeRateLimit, LogTypeAPI,
	} {
		c.Level[t] = level
	}
}

// Log writes msg when level is enabled for logType.
func (c *LoggerConfig) Log(logType LogType, level LogLevel, msg string, args ...interface{}) {
	if c == nil || c.Logger == nil {
		return
	}
	lvl, ok := c.Level[logType]
	if !ok {
		lvl = LogLevelNone
	}
	if level <= lvl {
		c.Logger.Log(logType, level, msg, args...)
	}
}

// SlogLogger adapts a *slog.Logger to Logger. The log type is attached
// as the "type" attribute.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Log(logType LogType, level LogLevel, msg string, args ...interface{}) {
	s.l.Log(context.Background(), slogLevel(level), fmt.Sprintf(msg, args...), slog.String("type", string(logType)))
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

type NullLogger struct{}

func (l *NullLogger) Log(logType LogType, level LogLevel, msg string, args ...interface{}) {}
