// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

// Package redisstore keeps registered public keys in a Redis hash, so they
// survive a broker restart and can be inspected from outside the process.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "roomsocket:public_keys"

type Store struct {
	client *redis.Client
	key    string
}

type Option func(*Store)

// WithKey sets the hash that holds the keys.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// New wraps an existing client. Close closes it.
func New(client *redis.Client, options ...Option) *Store {
	s := &Store{client: client, key: defaultKey}
	for _, o := range options {
		o(s)
	}
	return s
}

// Connect dials addr and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int, options ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(client, options...), nil
}

func (s *Store) Register(ctx context.Context, clientID, publicKey string) error {
	if err := s.client.HSet(ctx, s.key, clientID, publicKey).Err(); err != nil {
		return fmt.Errorf("register public key for %s: %w", clientID, err)
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, clientIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}

	vals, err := s.client.HMGet(ctx, s.key, clientIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup public keys: %w", err)
	}
	for i, v := range vals {
		if key, ok := v.(string); ok {
			out[clientIDs[i]] = key
		}
	}
	return out, nil
}

func (s *Store) Remove(ctx context.Context, clientID string) error {
	if err := s.client.HDel(ctx, s.key, clientID).Err(); err != nil {
		return fmt.Errorf("remove public key for %s: %w", clientID, err)
	}
	return nil
}

// Clear drops every stored key. Keys left over from a previous run belong
// to clients that no longer exist.
func (s *Store) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
