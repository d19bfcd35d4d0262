// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/FilipeJohansson/roomsocket"
)

const qrSize = 256

// RoomQR is the JSON document encoded in a room's QR code.
type RoomQR struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	JoinURL   string `json:"joinUrl"`
	Timestamp int64  `json:"timestamp"`
}

type qrData struct {
	DataURL string `json:"dataUrl"`
	RoomID  string `json:"roomId"`
	JoinURL string `json:"joinUrl"`
}

// joinURL builds the link a scanned code opens. The base query parameter
// overrides the scheme and host taken from the request.
func joinURL(r *http.Request, roomID string) string {
	if base := strings.TrimRight(r.URL.Query().Get("base"), "/"); base != "" {
		return fmt.Sprintf("%s/join?roomId=%s", base, url.QueryEscape(roomID))
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s/join?roomId=%s", scheme, r.Host, url.QueryEscape(roomID))
}

// qrCode renders a join QR code for a room id. format=data returns a
// base64 data URL in JSON; anything else returns a PNG.
func (a *API) qrCode(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	link := joinURL(r, roomID)

	content, err := json.Marshal(RoomQR{
		Type:      "e2e-chat-room",
		RoomID:    roomID,
		JoinURL:   link,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	png, err := qrcode.Encode(string(content), qrcode.Medium, qrSize)
	if err != nil {
		a.logger.Log(roomsocket.LogTypeAPI, roomsocket.LogLevelError, "QR code for %s: %v", roomID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "data" {
		writeData(w, qrData{
			DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			RoomID:  roomID,
			JoinURL: link,
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
