// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// DecodeEnvelope validates raw as a JSON object carrying a string "type"
// and a "data" member, then decodes it.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, newMalformedMessageError(errors.New("not valid JSON"))
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Envelope{}, newMalformedMessageError(errors.New("expected a JSON object"))
	}
	t := root.Get("type")
	if !t.Exists() || t.Type != gjson.String || t.Str == "" {
		return Envelope{}, newMissingTypeError()
	}
	if !root.Get("data").Exists() {
		return Envelope{}, newMalformedMessageError(newMissingFieldError("data"))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, newMalformedMessageError(err)
	}
	return env, nil
}

func newMissingTypeError() error {
	return newMalformedMessageError(newMissingFieldError("type"))
}

// DecodeData unmarshals an envelope's data into v. A null or absent data
// member leaves v untouched.
func DecodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newMalformedMessageError(fmt.Errorf("data: %w", err))
	}
	return nil
}

// EncodeEnvelope builds an outbound frame.
func EncodeEnvelope(t EventType, data interface{}, timestamp int64) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      string(t),
		Data:      raw,
		Timestamp: timestamp,
	})
}

// EncodeError builds an error envelope for err. The human message is
// carried both in data.error and the envelope's error field.
func EncodeError(err error, timestamp int64) []byte {
	msg := err.Error()
	data, _ := json.Marshal(ErrorData{Error: msg, Code: ErrorCode(err)})
	raw, _ := json.Marshal(Envelope{
		Type:      string(TypeError),
		Data:      data,
		Error:     &msg,
		Timestamp: timestamp,
	})
	return raw
}
