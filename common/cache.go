// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrCacheMiss = errors.New("cache miss")
)

type cacheEntry struct {
	payload []byte
	expires time.Time
}

// Cache is a two tier cache. Values are lz4 compressed and kept in a local LRU; when
// redis is configured they are also written through to redis.
type Cache struct {
	local *lru.Cache
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCache creates a cache holding at most localSize entries locally. redisURL may be
// empty in which case only the local tier is used.
func NewCache(localSize int, redisURL string, ttl time.Duration) (*Cache, error) {
	if localSize <= 0 {
		localSize = 1024
	}

	local, err := lru.New(localSize)
	if err != nil {
		log.Error().Err(err).Int("Size", localSize).Msg("could not create LRU cache")
		return nil, err
	}

	c := &Cache{
		local: local,
		ttl:   ttl,
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Error().Err(err).Msg("could not parse redis URL")
			return nil, err
		}
		c.rdb = redis.NewClient(opt)
	}

	return c, nil
}

// NewCacheFromConfig builds a cache from the cache.* viper keys
func NewCacheFromConfig() (*Cache, error) {
	redisURL := ""
	if viper.GetBool("cache.redis") {
		redisURL = viper.GetString("cache.redis_url")
	}
	return NewCache(viper.GetInt("cache.local_size"), redisURL, time.Duration(viper.GetInt("cache.ttl"))*time.Second)
}

// Set stores val under key in every configured tier
func (c *Cache) Set(ctx context.Context, key string, val []byte) error {
	compressed, err := Compress(val)
	if err != nil {
		return err
	}

	entry := cacheEntry{payload: compressed}
	if c.ttl > 0 {
		entry.expires = time.Now().Add(c.ttl)
	}
	c.local.Add(key, entry)

	if c.rdb != nil {
		return c.rdb.Set(ctx, key, compressed, c.ttl).Err()
	}
	return nil
}

// Get returns the value stored under key or ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := c.local.Get(key); ok {
		entry := v.(cacheEntry)
		if entry.expires.IsZero() || time.Now().Before(entry.expires) {
			return Decompress(entry.payload)
		}
		c.local.Remove(key)
	}

	if c.rdb == nil {
		return nil, ErrCacheMiss
	}

	compressed, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		log.Warn().Err(err).Str("Key", key).Msg("redis get failed")
		return nil, err
	}

	// promote to the local tier
	entry := cacheEntry{payload: compressed}
	if c.ttl > 0 {
		entry.expires = time.Now().Add(c.ttl)
	}
	c.local.Add(key, entry)
	return Decompress(compressed)
}

// Invalidate removes key from every tier
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.local.Remove(key)
	if c.rdb != nil {
		return c.rdb.Del(ctx, key).Err()
	}
	return nil
}

// CacheGetJSON decodes the cached JSON document stored under key into a new T
func CacheGetJSON[T any](ctx context.Context, c *Cache, key string) (*T, error) {
	if c == nil {
		return nil, ErrCacheMiss
	}
	raw, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var val T
	if err := json.Unmarshal(raw, &val); err != nil {
		log.Warn().Err(err).Str("Key", key).Msg("could not decode cached value")
		return nil, ErrCacheMiss
	}
	return &val, nil
}

// CacheSetJSON encodes val as JSON and stores it under key
func CacheSetJSON[T any](ctx context.Context, c *Cache, key string, val T) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw)
}
