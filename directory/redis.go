package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goUserAuth/permission"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

const (
	fieldID           = "id"
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
	fieldPermission   = "permission"
	fieldRefreshHash  = "refresh_token_hash"
	fieldCreatedAt    = "created_at"
)

// KEYS[1]=email index, KEYS[2]=user hash, KEYS[3]=order list
const createUserScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2],
  "id", ARGV[1],
  "email", ARGV[2],
  "password_hash", ARGV[3],
  "permission", ARGV[4],
  "refresh_token_hash", "",
  "created_at", ARGV[5])
redis.call("RPUSH", KEYS[3], ARGV[1])
return 1
`

var createUserLua = redis.NewScript(createUserScript)

// KEYS[1]=user hash; ARGV[1]=field, ARGV[2]=value
const setFieldScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return redis.call("HGETALL", KEYS[1])
`

var setFieldLua = redis.NewScript(setFieldScript)

// KEYS[1]=user hash; ARGV[1]=presented hash, ARGV[2]=next hash.
// Returns {status, field, value, ...}.
const rotateRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local stored = redis.call("HGET", KEYS[1], "refresh_token_hash")
local status = 3
if not stored or stored == "" or stored ~= ARGV[1] then
  redis.call("HSET", KEYS[1], "refresh_token_hash", "")
  status = 2
else
  redis.call("HSET", KEYS[1], "refresh_token_hash", ARGV[2])
end
local out = redis.call("HGETALL", KEYS[1])
table.insert(out, 1, status)
return out
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Redis is a Directory backed by Redis hashes. Each user is one hash; an
// email→id key enforces uniqueness and a list keeps insertion order.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis directory using prefix as the key namespace.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "ua"
	}
	return &Redis{redis: client, prefix: prefix, now: time.Now}
}

func (r *Redis) userKey(id string) string     { return r.prefix + ":user:" + id }
func (r *Redis) emailKey(email string) string { return r.prefix + ":email:" + email }
func (r *Redis) orderKey() string             { return r.prefix + ":users" }

func (r *Redis) Create(ctx context.Context, email, passwordHash string, level permission.Level) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Permission:   level,
		CreatedAt:    r.now().UTC(),
	}
	created, err := createUserLua.Run(ctx, r.redis,
		[]string{r.emailKey(email), r.userKey(u.ID), r.orderKey()},
		u.ID, u.Email, u.PasswordHash, string(u.Permission), u.CreatedAt.Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created == 0 {
		return User{}, ErrConflict
	}
	return u, nil
}

func (r *Redis) FindByID(ctx context.Context, id string) (User, error) {
	fields, err := r.redis.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return User{}, ErrNotFound
	}
	return userFromHash(fields)
}

func (r *Redis) FindByEmail(ctx context.Context, email string) (User, error) {
	id, err := r.redis.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return r.FindByID(ctx, id)
}

func (r *Redis) ListAll(ctx context.Context) ([]User, error) {
	ids, err := r.redis.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []User{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]User, 0, len(ids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		u, err := userFromHash(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *Redis) SetRefreshTokenHash(ctx context.Context, id, hash string) (User, error) {
	return r.setField(ctx, id, fieldRefreshHash, hash)
}

func (r *Redis) RevokeRefreshToken(ctx context.Context, id string) (User, error) {
	return r.setField(ctx, id, fieldRefreshHash, "")
}

func (r *Redis) SetPermission(ctx context.Context, id string, level permission.Level) (User, error) {
	return r.setField(ctx, id, fieldPermission, string(level))
}

func (r *Redis) RotateRefreshTokenHash(ctx context.Context, id, presented, next string) (User, error) {
	res, err := rotateRefreshLua.Run(ctx, r.redis, []string{r.userKey(id)}, presented, next).Slice()
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(res) == 0 {
		return User{}, fmt.Errorf("%w: empty rotate result", ErrUnavailable)
	}
	status, ok := res[0].(int64)
	if !ok {
		return User{}, fmt.Errorf("%w: unexpected rotate status %T", ErrUnavailable, res[0])
	}
	if status == rotateStatusNotFound {
		return User{}, ErrNotFound
	}

	fields, err := pairsToMap(res[1:])
	if err != nil {
		return User{}, err
	}
	u, err := userFromHash(fields)
	if err != nil {
		return User{}, err
	}
	switch status {
	case rotateStatusRotated:
		return u, nil
	case rotateStatusMismatch:
		return u, ErrRefreshHashMismatch
	default:
		return User{}, fmt.Errorf("%w: unexpected rotate status %d", ErrUnavailable, status)
	}
}

func (r *Redis) setField(ctx context.Context, id, field, value string) (User, error) {
	res, err := setFieldLua.Run(ctx, r.redis, []string{r.userKey(id)}, field, value).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	fields, err := pairsToMap(res)
	if err != nil {
		return User{}, err
	}
	return userFromHash(fields)
}

func pairsToMap(flat []interface{}) (map[string]string, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: odd field list", ErrUnavailable)
	}
	out := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, ok1 := flat[i].(string)
		v, ok2 := flat[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: non-string field", ErrUnavailable)
		}
		out[k] = v
	}
	return out, nil
}

func userFromHash(fields map[string]string) (User, error) {
	created, err := time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	if err != nil {
		return User{}, fmt.Errorf("%w: corrupt created_at: %v", ErrUnavailable, err)
	}
	return User{
		ID:               fields[fieldID],
		Email:            fields[fieldEmail],
		PasswordHash:     fields[fieldPasswordHash],
		Permission:       permission.Level(fields[fieldPermission]),
		RefreshTokenHash: fields[fieldRefreshHash],
		CreatedAt:        created,
	}, nil
}

var _ Directory = (*Redis)(nil)
