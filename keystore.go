// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package roomsocket

import (
	"context"
)

// KeyStore keeps the public key each client registered. Keys are opaque
// strings; the broker never interprets them.
type KeyStore interface {
	Register(ctx context.Context, clientID, publicKey string) error
	// Lookup returns the keys registered for the given ids. Ids without a
	// key are absent from the result.
	Lookup(ctx context.Context, clientIDs []string) (map[string]string, error)
	Remove(ctx context.Context, clientID string) error
}

type MemoryKeyStore struct {
	keys *SharedCollection[string, string]
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: NewSharedCollection[string, string]()}
}

func (s *MemoryKeyStore) Register(_ context.Context, clientID, publicKey string) error {
	s.keys.Add(publicKey, clientID)
	return nil
}

func (s *MemoryKeyStore) Lookup(_ context.Context, clientIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(clientIDs))
	for _, id := range clientIDs {
		if key, ok := s.keys.Get(id); ok {
			out[id] = key
		}
	}
	return out, nil
}

func (s *MemoryKeyStore) Remove(_ context.Context, clientID string) error {
	s.keys.Remove(clientID)
	return nil
}

func (s *MemoryKeyStore) Len() int {
	return s.keys.Len()
}
