// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/FilipeJohansson/roomsocket"
	"github.com/FilipeJohansson/roomsocket/api"
)

// IServer defines the lifecycle of a process serving a broker.
type IServer interface {
	// Start binds both listeners and serves until Stop is called.
	Start() error

	// StartWithContext binds both listeners and serves until ctx is done.
	StartWithContext(ctx context.Context) error

	// Stop closes both listeners and every client immediately.
	Stop() error

	// StopGracefully stops the server, waiting up to timeout for in-flight
	// API requests.
	StopGracefully(timeout time.Duration) error
}

type Config struct {
	Host    string
	WSPort  int
	APIPort int
	Path    string

	// When PortFallback is set and a port is taken, the next
	// PortAttempts-1 ports are tried in turn.
	PortFallback bool
	PortAttempts int

	ShutdownTimeout time.Duration

	EnableSSL bool
	CertFile  string
	KeyFile   string
}

func DefaultServerConfig() *Config {
	return &Config{
		WSPort:          8080,
		APIPort:         3001,
		Path:            "/",
		PortFallback:    true,
		PortAttempts:    10,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server runs a broker's websocket endpoint and its query API on two
// listeners.
type Server struct {
	broker     *roomsocket.Broker
	config     *Config
	apiOptions []api.Option
	logger     *roomsocket.LoggerConfig

	wsListener  net.Listener
	apiListener net.Listener
	wsServer    *http.Server
	apiServer   *http.Server
	cancelRun   context.CancelFunc

	isRunning bool
	mu        sync.RWMutex
}

type Option func(*Server)

// NewServer returns a Server for broker with default configuration.
func NewServer(broker *roomsocket.Broker, options ...Option) *Server {
	svr := &Server{
		broker: broker,
		config: DefaultServerConfig(),
		logger: &roomsocket.LoggerConfig{Logger: &roomsocket.NullLogger{}},
	}

	for _, o := range options {
		o(svr)
	}

	return svr
}

// ===== Functional Options =====

// WithHost sets the interface both listeners bind to. Empty means all
// interfaces.
func WithHost(host string) Option {
	return func(s *Server) {
		s.config.Host = host
	}
}

// WithPorts sets the preferred websocket and API ports. Ports outside
// 0-65535 keep their defaults; 0 picks a free port.
func WithPorts(wsPort, apiPort int) Option {
	return func(s *Server) {
		if wsPort >= 0 && wsPort <= 65535 {
			s.config.WSPort = wsPort
		}
		if apiPort >= 0 && apiPort <= 65535 {
			s.config.APIPort = apiPort
		}
	}
}

// WithPath sets the path the websocket endpoint is served on. If the path
// is empty, it defaults to "/". If the path does not start with a slash,
// it is prepended with one.
func WithPath(path string) Option {
	return func(s *Server) {
		if path == "" {
			path = "/"
		}

		if path[0] != '/' {
			path = "/" + path
		}

		s.config.Path = path
	}
}

// WithPortFallback enables trying up to attempts consecutive ports when
// the preferred one is taken. attempts <= 0 keeps the current value.
func WithPortFallback(enabled bool, attempts int) Option {
	return func(s *Server) {
		s.config.PortFallback = enabled
		if attempts > 0 {
			s.config.PortAttempts = attempts
		}
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.config.ShutdownTimeout = timeout
		}
	}
}

// WithSSL enables TLS on both listeners. If either file is empty, TLS is
// not enabled. The certificate and key file should be in PEM format.
func WithSSL(certFile, keyFile string) Option {
	return func(s *Server) {
		if certFile == "" || keyFile == "" {
			s.logger.Log(roomsocket.LogTypeServer, roomsocket.LogLevelWarn, "certFile or keyFile is empty, SSL not enabled")
			return
		}

		s.config.EnableSSL = true
		s.config.CertFile = certFile
		s.config.KeyFile = keyFile
	}
}

// WithAPIOptions passes options to the query API built on Start.
func WithAPIOptions(options ...api.Option) Option {
	return func(s *Server) {
		s.apiOptions = append(s.apiOptions, options...)
	}
}

func WithLogger(logger *roomsocket.LoggerConfig) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ===== Lifecycle =====

// Listen binds both listeners, falling back to later ports when enabled.
// It fails with roomsocket.ErrPortInUse when no port could be bound.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server is already running")
	}
	if s.wsListener != nil {
		return nil
	}

	ws, err := s.listen(s.config.WSPort)
	if err != nil {
		return err
	}
	apiLn, err := s.listen(s.config.APIPort)
	if err != nil {
		_ = ws.Close()
		return err
	}

	s.wsListener = ws
	s.apiListener = apiLn
	return nil
}

func (s *Server) listen(port int) (net.Listener, error) {
	attempts := 1
	if s.config.PortFallback && port != 0 && s.config.PortAttempts > 1 {
		attempts = s.config.PortAttempts
	}

	lastErr := error(syscall.EADDRINUSE)
	for i := 0; i < attempts && port+i <= 65535; i++ {
		addr := net.JoinHostPort(s.config.Host, strconv.Itoa(port+i))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				s.logger.Log(roomsocket.LogTypeServer, roomsocket.LogLevelWarn, "Port %d is in use, using %d", port, port+i)
			}
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		lastErr = err
	}
	return nil, roomsocket.NewPortInUseError(port, lastErr)
}

// WSAddr returns the bound websocket address, or nil before Listen.
func (s *Server) WSAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// APIAddr returns the bound API address, or nil before Listen.
func (s *Server) APIAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.apiListener == nil {
		return nil
	}
	return s.apiListener.Addr()
}

// Start binds and serves until Stop or StopGracefully is called.
func (s *Server) Start() error {
	return s.StartWithContext(context.Background())
}

// StartWithContext binds both listeners, starts the broker's heartbeat and
// sweep, and serves until ctx is done or a listener fails. It then shuts
// down gracefully within the configured timeout.
func (s *Server) StartWithContext(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve serves on the listeners bound by Listen.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	if s.wsListener == nil || s.apiListener == nil {
		s.mu.Unlock()
		return fmt.Errorf("server is not listening")
	}

	wsMux := http.NewServeMux()
	wsMux.Handle(s.config.Path, s.broker)

	scheme := "ws"
	if s.config.EnableSSL {
		scheme = "wss"
	}
	apiOptions := append([]api.Option{
		api.WithLogger(s.logger),
		api.WithMetrics(s.broker.Metrics()),
		api.WithWebSocketURL(fmt.Sprintf("%s://%s%s", scheme, s.wsListener.Addr(), s.config.Path)),
	}, s.apiOptions...)

	s.wsServer = &http.Server{
		Handler:           wsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.apiServer = &http.Server{
		Handler:           api.New(s.broker, apiOptions...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.isRunning = true
	wsListener, apiListener := s.wsListener, s.apiListener
	s.mu.Unlock()

	go s.broker.Run(runCtx)

	s.logger.Log(roomsocket.LogTypeServer, roomsocket.LogLevelInfo, "WebSocket server listening on %s, path %s", wsListener.Addr(), s.config.Path)
	s.logger.Log(roomsocket.LogTypeServer, roomsocket.LogLevelInfo, "API server listening on %s", apiListener.Addr())

	errChan := make(chan error, 2)
	go func() { errChan <- s.serve(s.wsServer, wsListener) }()
	go func() { errChan <- s.serve(s.apiServer, apiListener) }()

	var serveErr error
	select {
	case <-runCtx.Done():
	case serveErr = <-errChan:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer shutdownCancel()
	if err := s.shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown error: %w", err)
	}

	if serveErr != nil {
		return serveErr
	}
	s.logger.Log(roomsocket.LogTypeServer, roomsocket.LogLevelInfo, "Server stopped gracefully")
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) error {
	var err error
	if s.config.EnableSSL {
		err = srv.ServeTLS(ln, s.config.CertFile, s.config.KeyFile)
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server error: %w", err)
}

// shutdown runs once per Serve. It closes the broker's clients first,
// since hijacked websocket connections are not tracked by http.Server.
// Connections still open when ctx expires are closed forcibly. The broker
// refuses new connections afterwards, so a Server serves only once.
func (s *Server) shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancelRun
	wsServer, apiServer := s.wsServer, s.apiServer
	s.wsListener, s.apiListener = nil, nil
	s.mu.Unlock()

	cancel()
	s.broker.Shutdown()

	err := errors.Join(wsServer.Shutdown(ctx), apiServer.Shutdown(ctx))
	if err != nil {
		_ = wsServer.Close()
		_ = apiServer.Close()
	}
	return err
}

// Stop closes both listeners and every connection immediately.
func (s *Server) Stop() error {
	err := s.StopGracefully(0)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// StopGracefully stops the server, waiting up to timeout for in-flight API
// requests before closing them.
func (s *Server) StopGracefully(timeout time.Duration) error {
	if !s.IsRunning() {
		return fmt.Errorf("server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.shutdown(ctx)
}

// IsRunning reports whether Serve is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
