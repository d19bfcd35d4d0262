package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/FilipeJohansson/roomsocket"
	"github.com/FilipeJohansson/roomsocket/config"
	"github.com/FilipeJohansson/roomsocket/redisstore"
	"github.com/FilipeJohansson/roomsocket/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default ./roomsocket.yaml)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if cfg.Source != "" {
		logger.Info("Configuration loaded", slog.String("file", cfg.Source))
	}

	loggerConfig := roomsocket.DefaultLoggerConfig()
	loggerConfig.Logger = roomsocket.NewSlogLogger(logger)
	loggerConfig.SetLevel(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := append(cfg.BrokerOptions(), roomsocket.WithLoggerConfig(loggerConfig))

	if cfg.Metrics.Enabled {
		options = append(options, roomsocket.WithMetrics(roomsocket.NewMetrics()))
	}

	if cfg.Redis.Enabled {
		store, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis", slog.String("addr", cfg.Redis.Addr), slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		options = append(options, roomsocket.WithKeyStore(store))
		logger.Info("Public keys stored in Redis", slog.String("addr", cfg.Redis.Addr))
	}

	broker, err := roomsocket.NewBroker(options...)
	if err != nil {
		logger.Error("Invalid broker configuration", slog.Any("error", err))
		os.Exit(1)
	}

	srv := server.NewServer(broker, append(cfg.ServerOptions(), server.WithLogger(loggerConfig))...)
	if err := srv.StartWithContext(ctx); err != nil {
		if errors.Is(err, roomsocket.ErrPortInUse) {
			logger.Error("No free port available; set WS_PORT/API_PORT or free the port",
				slog.Int("wsPort", cfg.Server.WSPort),
				slog.Int("apiPort", cfg.Server.APIPort),
				slog.Any("error", err))
			os.Exit(1)
		}
		logger.Error("Server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Server shut down successfully.")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// connectRedis opens the key store and drops keys left by a previous run;
// their clients are gone.
func connectRedis(ctx context.Context, rc config.RedisConfig) (*redisstore.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := redisstore.Connect(ctx, rc.Addr, rc.Password, rc.DB, redisstore.WithKey(rc.Key))
	if err != nil {
		return nil, err
	}
	if err := store.Clear(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
