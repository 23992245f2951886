package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	_ Provider    = (*RedisProvider)(nil)
	_ TTLProvider = (*RedisProvider)(nil)
)

// RedisOptions configures a cache-family adapter.
type RedisOptions struct {
	Name      string
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // defaults to "doc:"
}

// RedisProvider reads JSON documents out of a Redis cache. Keys are derived
// as "<prefix><id>"; the application that owns the cache writes them the
// same way.
type RedisProvider struct {
	name   string
	rdb    *redis.Client
	prefix string
}

// NewRedisProvider builds the client. Connectivity is not checked here:
// unlike the relational adapter there is no cheap lazy pool to warm, and a
// cache that is down at startup must not prevent inspecting the stores that
// are up. Failures surface per call as fault snapshots.
func NewRedisProvider(opts RedisOptions) *RedisProvider {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "doc:"
	}
	return &RedisProvider{
		name: opts.Name,
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
	}
}

// NewRedisProviderFromClient wraps an existing client. Used by tests.
func NewRedisProviderFromClient(name string, rdb *redis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = "doc:"
	}
	return &RedisProvider{name: name, rdb: rdb, prefix: prefix}
}

func (p *RedisProvider) Name() string   { return p.name }
func (p *RedisProvider) Family() Family { return FamilyKV }

// KeyFor prepends the configured cache namespace to the record id.
func (p *RedisProvider) KeyFor(id string) string { return p.prefix + id }

func (p *RedisProvider) FetchByKey(ctx context.Context, id string) (Snapshot, error) {
	snap := Snapshot{Store: p.name, Family: FamilyKV, NativeKey: p.KeyFor(id)}

	val, err := p.rdb.Get(ctx, snap.NativeKey).Result()
	if errors.Is(err, redis.Nil) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("getting %s: %w", snap.NativeKey, err)
	}

	raw, err := decodeCachePayload(val)
	if err != nil {
		return snap, fmt.Errorf("decoding payload for %s: %w", snap.NativeKey, errMalformed(err))
	}

	snap.Found = true
	snap.Raw = raw
	return snap, nil
}

// TTL returns the remaining lifetime of the cached entry in seconds, or nil
// when the key is missing or persistent.
func (p *RedisProvider) TTL(ctx context.Context, id string) (*int64, error) {
	d, err := p.rdb.TTL(ctx, p.KeyFor(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading ttl for %s: %w", p.KeyFor(id), err)
	}
	// -2: key missing, -1: no expiry. Neither is a TTL finding.
	if d < 0 {
		return nil, nil
	}
	secs := int64(d / time.Second)
	return &secs, nil
}

func (p *RedisProvider) Health(ctx context.Context) Health {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return Health{OK: false, Detail: err.Error()}
	}
	return Health{OK: true}
}

// Close releases the client's connection pool.
func (p *RedisProvider) Close() error { return p.rdb.Close() }

// decodeCachePayload parses a cached value. The owning application caches
// records as JSON objects; a bare string value is wrapped under "content" so
// legacy string caches still normalize instead of erroring out.
func decodeCachePayload(val string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(val), &raw); err == nil {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal([]byte(val), &s); err == nil {
		return map[string]any{"content": s}, nil
	}
	return nil, fmt.Errorf("value is neither a JSON object nor a JSON string")
}
