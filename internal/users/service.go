package users

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/goUserAuth/cache"
	"github.com/MrEthical07/goUserAuth/directory"
	"github.com/MrEthical07/goUserAuth/permission"
)

// Hooks lets the engine observe cache behaviour without this package
// importing metrics or logging.
type Hooks struct {
	CacheHit  func()
	CacheMiss func()
	Warn      func(msg string, args ...any)
}

// Service is the cached view of a Directory.
type Service struct {
	dir   directory.Directory
	cache cache.Cache
	hooks Hooks
}

// New wires dir behind c. A nil cache disables caching.
func New(dir directory.Directory, c cache.Cache, hooks Hooks) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{dir: dir, cache: c, hooks: hooks}
}

// record is the cache encoding of a full user. directory.User hides its
// hashes from JSON, so the cache carries its own shape.
type record struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"password_hash"`
	Permission       string    `json:"permission"`
	RefreshTokenHash string    `json:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

func toRecord(u directory.User) record {
	return record{
		ID:               u.ID,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Permission:       string(u.Permission),
		RefreshTokenHash: u.RefreshTokenHash,
		CreatedAt:        u.CreatedAt,
	}
}

func (r record) user() directory.User {
	return directory.User{
		ID:               r.ID,
		Email:            r.Email,
		PasswordHash:     r.PasswordHash,
		Permission:       permission.Level(r.Permission),
		RefreshTokenHash: r.RefreshTokenHash,
		CreatedAt:        r.CreatedAt,
	}
}

// FindByID returns the full record for id.
func (s *Service) FindByID(ctx context.Context, id string) (directory.User, error) {
	rec, err := readThrough(ctx, s, cache.ByID(id), func() (record, error) {
		u, err := s.dir.FindByID(ctx, id)
		return toRecord(u), err
	})
	return rec.user(), err
}

// FindByEmail returns the full record for email.
func (s *Service) FindByEmail(ctx context.Context, email string) (directory.User, error) {
	rec, err := readThrough(ctx, s, cache.ByEmail(email), func() (record, error) {
		u, err := s.dir.FindByEmail(ctx, email)
		return toRecord(u), err
	})
	return rec.user(), err
}

// FindPublicByID returns the public projection for id.
func (s *Service) FindPublicByID(ctx context.Context, id string) (directory.PublicUser, error) {
	return readThrough(ctx, s, cache.PublicByID(id), func() (directory.PublicUser, error) {
		u, err := s.dir.FindByID(ctx, id)
		return u.Public(), err
	})
}

// FindPublicByEmail returns the public projection for email.
func (s *Service) FindPublicByEmail(ctx context.Context, email string) (directory.PublicUser, error) {
	return readThrough(ctx, s, cache.PublicByEmail(email), func() (directory.PublicUser, error) {
		u, err := s.dir.FindByEmail(ctx, email)
		return u.Public(), err
	})
}

// ListPublic returns every user's public projection in insertion order.
func (s *Service) ListPublic(ctx context.Context) ([]directory.PublicUser, error) {
	return readThrough(ctx, s, cache.All(), func() ([]directory.PublicUser, error) {
		all, err := s.dir.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]directory.PublicUser, len(all))
		for i, u := range all {
			out[i] = u.Public()
		}
		return out, nil
	})
}

// Canonical reads straight from the directory, bypassing the cache.
func (s *Service) Canonical(ctx context.Context, id string) (directory.User, error) {
	return s.dir.FindByID(ctx, id)
}

// Create inserts a user and drops the listing key.
func (s *Service) Create(ctx context.Context, email, passwordHash string, level permission.Level) (directory.User, error) {
	u, err := s.dir.Create(ctx, email, passwordHash, level)
	if err != nil {
		return directory.User{}, err
	}
	s.invalidate(ctx, u)
	return u, nil
}

func (s *Service) SetRefreshTokenHash(ctx context.Context, id, hash string) (directory.User, error) {
	return s.mutate(ctx, func() (directory.User, error) { return s.dir.SetRefreshTokenHash(ctx, id, hash) })
}

func (s *Service) RevokeRefreshToken(ctx context.Context, id string) (directory.User, error) {
	return s.mutate(ctx, func() (directory.User, error) { return s.dir.RevokeRefreshToken(ctx, id) })
}

func (s *Service) SetPermission(ctx context.Context, id string, level permission.Level) (directory.User, error) {
	return s.mutate(ctx, func() (directory.User, error) { return s.dir.SetPermission(ctx, id, level) })
}

// RotateRefreshTokenHash invalidates on mismatch too, since the directory
// cleared the stored hash.
func (s *Service) RotateRefreshTokenHash(ctx context.Context, id, presented, next string) (directory.User, error) {
	return s.mutate(ctx, func() (directory.User, error) { return s.dir.RotateRefreshTokenHash(ctx, id, presented, next) })
}

func (s *Service) mutate(ctx context.Context, op func() (directory.User, error)) (directory.User, error) {
	u, err := op()
	if u.ID != "" {
		s.invalidate(ctx, u)
	}
	return u, err
}

// invalidate is the only place that drops cache entries.
func (s *Service) invalidate(ctx context.Context, u directory.User) {
	if err := s.cache.Invalidate(ctx, cache.KeysFor(u.ID, u.Email)...); err != nil {
		s.warn("userauth: cache invalidation failed", "user_id", u.ID, "error", err)
	}
}

func (s *Service) warn(msg string, args ...any) {
	if s.hooks.Warn != nil {
		s.hooks.Warn(msg, args...)
	}
}

func (s *Service) hit() {
	if s.hooks.CacheHit != nil {
		s.hooks.CacheHit()
	}
}

func (s *Service) miss() {
	if s.hooks.CacheMiss != nil {
		s.hooks.CacheMiss()
	}
}

// readThrough serves key from the cache or loads it. The generation is taken
// before load, so a mutation that invalidates key while load runs makes the
// Fill a no-op instead of caching the pre-mutation record.
func readThrough[T any](ctx context.Context, s *Service, key cache.Key, load func() (T, error)) (T, error) {
	var zero T

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.warn("userauth: cache read failed", "key", key.String(), "error", err)
	}
	if ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			s.hit()
			return v, nil
		}
		s.warn("userauth: dropping undecodable cache entry", "key", key.String())
		_ = s.cache.Invalidate(ctx, key)
	}
	s.miss()

	generation, genErr := s.cache.Generation(ctx, key)
	if genErr != nil && !errors.Is(genErr, context.Canceled) {
		s.warn("userauth: cache generation read failed", "key", key.String(), "error", genErr)
	}

	v, err := load()
	if err != nil {
		return zero, err
	}
	if genErr != nil {
		return v, nil
	}
	if data, err := json.Marshal(v); err == nil {
		if _, err := s.cache.Fill(ctx, key, data, generation); err != nil && !errors.Is(err, context.Canceled) {
			s.warn("userauth: cache write failed", "key", key.String(), "error", err)
		}
	}
	return v, nil
}
