package store

import (
	"context"
	"fmt"
	"time"

	"newsbrief/types"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 5 * time.Second

// FingerprintsConfig configures the Redis connection and key prefix.
type FingerprintsConfig struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	Prefix   string // redis key prefix, default "newsbrief:fp"
}

// Fingerprints is a Redis-backed fingerprint store. Each kind lives in
// one sorted set scored by insertion time, which gives O(1) membership
// checks and newest-first recency listings from the same structure.
// Append-only: nothing is removed except by an explicit Reset.
type Fingerprints struct {
	client *redis.Client
	prefix string
}

// NewFingerprints creates a fingerprint store and verifies connectivity.
func NewFingerprints(cfg FingerprintsConfig) (*Fingerprints, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "newsbrief:fp"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return &Fingerprints{client: client, prefix: cfg.Prefix}, nil
}

func (f *Fingerprints) key(kind types.FingerprintKind) string {
	return fmt.Sprintf("%s:%s", f.prefix, kind)
}

// Exists reports whether key is already stored under kind.
func (f *Fingerprints) Exists(ctx context.Context, kind types.FingerprintKind, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := f.client.ZScore(ctx, f.key(kind), key).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, types.StoreUnavailable("fingerprints", err)
	}
	return true, nil
}

// Put stores key under kind, scored by the current time. Re-putting an
// existing key refreshes its score, which is harmless: retries after a
// partial batch are indistinguishable from genuine duplicates upstream.
func (f *Fingerprints) Put(ctx context.Context, kind types.FingerprintKind, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	score := float64(time.Now().UnixNano())
	if err := f.client.ZAdd(ctx, f.key(kind), redis.Z{Score: score, Member: key}).Err(); err != nil {
		return types.StoreUnavailable("fingerprints", err)
	}
	return nil
}

// ListRecent returns up to limit keys of the given kind, newest first.
func (f *Fingerprints) ListRecent(ctx context.Context, kind types.FingerprintKind, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys, err := f.client.ZRevRange(ctx, f.key(kind), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, types.StoreUnavailable("fingerprints", err)
	}
	return keys, nil
}

// Reset drops every fingerprint namespace. Administrative use only.
func (f *Fingerprints) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	keys := make([]string, len(types.FingerprintKinds))
	for i, k := range types.FingerprintKinds {
		keys[i] = f.key(k)
	}
	if err := f.client.Del(ctx, keys...).Err(); err != nil {
		return types.StoreUnavailable("fingerprints", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (f *Fingerprints) Close() error {
	return f.client.Close()
}
