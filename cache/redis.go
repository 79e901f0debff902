package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores entries as plain string keys with a PX expiry. Every entry
// has a sibling generation counter sharing its hash slot, so the fill check
// runs as one script on cluster clients too.
type Redis struct {
	redis         redis.UniversalClient
	prefix        string
	ttl           time.Duration
	generationTTL time.Duration
}

// fillScript stores ARGV[2] only while the generation still equals ARGV[1].
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then
	current = '0'
end
if current ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// invalidateScript drops the entry and advances its generation.
var invalidateScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
local generation = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
return generation
`)

// NewRedis returns a Redis-backed cache. prefix namespaces every key.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "uac"
	}
	// A generation counter must outlive any read-through load that started
	// before it was bumped, or the load could see the counter reset.
	return &Redis{redis: client, prefix: prefix, ttl: ttl, generationTTL: max(2*ttl, time.Hour)}
}

func (r *Redis) key(k Key) string {
	return r.prefix + ":{" + k.String() + "}"
}

func (r *Redis) generationKey(k Key) string {
	return r.key(k) + ":gen"
}

func (r *Redis) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, true, nil
}

func (r *Redis) Generation(ctx context.Context, key Key) (uint64, error) {
	raw, err := r.redis.Get(ctx, r.generationKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	generation, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: generation %q: %v", ErrUnavailable, raw, err)
	}
	return generation, nil
}

func (r *Redis) Fill(ctx context.Context, key Key, value []byte, generation uint64) (bool, error) {
	stored, err := fillScript.Run(ctx, r.redis,
		[]string{r.key(key), r.generationKey(key)},
		strconv.FormatUint(generation, 10), value, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return stored == 1, nil
}

func (r *Redis) Set(ctx context.Context, key Key, value []byte) error {
	if err := r.redis.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	// One script per key so cluster clients never see a cross-slot command.
	pipe := r.redis.Pipeline()
	for _, k := range keys {
		invalidateScript.Eval(ctx, pipe,
			[]string{r.key(k), r.generationKey(k)},
			r.generationTTL.Milliseconds(),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Cache = (*Redis)(nil)
