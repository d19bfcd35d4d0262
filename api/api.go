// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

// Package api serves a read-only HTTP view of a running broker.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/FilipeJohansson/roomsocket"
)

// QueryService is the part of the broker the API reads from. It never
// mutates room state.
type QueryService interface {
	Stats() roomsocket.ServerStats
	Rooms() []roomsocket.RoomStat
	RoomInfo(roomID string) (roomsocket.RoomInfo, error)
	GenerateRoomID() string
}

type API struct {
	query          QueryService
	logger         *roomsocket.LoggerConfig
	metrics        *roomsocket.Metrics
	allowedOrigins []string
	keyBits        int
	wsURL          string
	handler        http.Handler
}

type Option func(*API)

func WithLogger(logger *roomsocket.LoggerConfig) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics exposes m's registry on /metrics.
func WithMetrics(m *roomsocket.Metrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithAllowedOrigins sets the CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) {
		if len(origins) > 0 {
			a.allowedOrigins = origins
		}
	}
}

// WithKeyBits sets the RSA modulus size used by the key-pair endpoint.
func WithKeyBits(bits int) Option {
	return func(a *API) {
		if bits > 0 {
			a.keyBits = bits
		}
	}
}

// WithWebSocketURL sets the websocket address advertised by /api/docs.
func WithWebSocketURL(url string) Option {
	return func(a *API) {
		a.wsURL = url
	}
}

// New builds the API handler around q.
func New(q QueryService, options ...Option) *API {
	a := &API{
		query:          q,
		logger:         &roomsocket.LoggerConfig{Logger: &roomsocket.NullLogger{}},
		allowedOrigins: []string{"*"},
		keyBits:        2048,
		wsURL:          "ws://localhost:8080",
	}
	for _, o := range options {
		o(a)
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)

	sub := r.PathPrefix("/api").Subrouter()
	sub.HandleFunc("/stats", a.stats).Methods(http.MethodGet)
	sub.HandleFunc("/rooms", a.rooms).Methods(http.MethodGet)
	sub.HandleFunc("/rooms/generate", a.generateRoomID).Methods(http.MethodPost)
	sub.HandleFunc("/rooms/{roomId}", a.room).Methods(http.MethodGet)
	sub.HandleFunc("/rooms/{roomId}/qrcode", a.qrCode).Methods(http.MethodGet)
	sub.HandleFunc("/encryption/generate-keys", a.generateKeys).Methods(http.MethodPost)
	sub.HandleFunc("/docs", a.docs).Methods(http.MethodGet)

	if a.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.NotFoundHandler = http.HandlerFunc(a.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(a.notFound)

	c := cors.New(cors.Options{
		AllowedOrigins: a.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	a.handler = c.Handler(a.logRequests(r))
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.logger.Log(roomsocket.LogTypeAPI, roomsocket.LogLevelDebug, "%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Success: false, Error: msg})
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (a *API) stats(w http.ResponseWriter, _ *http.Request) {
	writeData(w, a.query.Stats())
}

func (a *API) rooms(w http.ResponseWriter, _ *http.Request) {
	writeData(w, a.query.Rooms())
}

func (a *API) room(w http.ResponseWriter, r *http.Request) {
	info, err := a.query.RoomInfo(mux.Vars(r)["roomId"])
	if err != nil {
		if errors.Is(err, roomsocket.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "Room not found")
			return
		}
		a.logger.Log(roomsocket.LogTypeAPI, roomsocket.LogLevelError, "Room info: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, info)
}

type generatedRoom struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

func (a *API) generateRoomID(w http.ResponseWriter, _ *http.Request) {
	writeData(w, generatedRoom{
		RoomID:  a.query.GenerateRoomID(),
		Message: "Room ID generated. Use WebSocket to join.",
	})
}

func (a *API) generateKeys(w http.ResponseWriter, _ *http.Request) {
	pair, err := GenerateKeyPair(a.keyBits)
	if err != nil {
		a.logger.Log(roomsocket.LogTypeAPI, roomsocket.LogLevelError, "Key generation: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, pair)
}

func (a *API) notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type docs struct {
	Endpoints []endpoint `json:"endpoints"`
	WebSocket struct {
		URL          string   `json:"url"`
		MessageTypes []string `json:"messageTypes"`
	} `json:"websocket"`
}

func (a *API) docs(w http.ResponseWriter, _ *http.Request) {
	var d docs
	d.Endpoints = []endpoint{
		{http.MethodGet, "/health", "Health check"},
		{http.MethodGet, "/api/stats", "Server statistics"},
		{http.MethodGet, "/api/rooms", "List all rooms"},
		{http.MethodGet, "/api/rooms/{roomId}", "Room details"},
		{http.MethodPost, "/api/rooms/generate", "Generate an unused room id"},
		{http.MethodGet, "/api/rooms/{roomId}/qrcode", "Join QR code (format=png|data)"},
		{http.MethodPost, "/api/encryption/generate-keys", "Generate an RSA key pair"},
	}
	if a.metrics != nil {
		d.Endpoints = append(d.Endpoints, endpoint{http.MethodGet, "/metrics", "Prometheus metrics"})
	}
	d.WebSocket.URL = a.wsURL
	d.WebSocket.MessageTypes = []string{
		"join_room", "leave_room", "send_message", "get_room_info", "kick_member",
		"update_permission", "register_public_key", "get_public_keys", "publish_config", "get_config",
	}
	writeData(w, d)
}
