package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goUserAuth/permission"
)

// Memory is an in-process Directory guarded by a single mutex.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	order   []string

	now func() time.Time
}

// MemoryOption configures a Memory directory.
type MemoryOption func(*Memory)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory returns an empty in-memory directory.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(ctx context.Context, email, passwordHash string, level permission.Level) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEmail[email]; exists {
		return User{}, ErrConflict
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Permission:   level,
		CreatedAt:    m.now().UTC(),
	}
	m.byID[u.ID] = u
	m.byEmail[email] = u.ID
	m.order = append(m.order, u.ID)
	return *u, nil
}

func (m *Memory) FindByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (m *Memory) FindByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return *m.byID[id], nil
}

func (m *Memory) ListAll(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]User, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.byID[id])
	}
	return out, nil
}

func (m *Memory) SetRefreshTokenHash(ctx context.Context, id, hash string) (User, error) {
	return m.update(ctx, id, func(u *User) { u.RefreshTokenHash = hash })
}

func (m *Memory) RevokeRefreshToken(ctx context.Context, id string) (User, error) {
	return m.update(ctx, id, func(u *User) { u.RefreshTokenHash = "" })
}

func (m *Memory) SetPermission(ctx context.Context, id string, level permission.Level) (User, error) {
	return m.update(ctx, id, func(u *User) { u.Permission = level })
}

func (m *Memory) RotateRefreshTokenHash(ctx context.Context, id, presented, next string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if !HashesEqual(u.RefreshTokenHash, presented) {
		u.RefreshTokenHash = ""
		return *u, ErrRefreshHashMismatch
	}
	u.RefreshTokenHash = next
	return *u, nil
}

func (m *Memory) update(ctx context.Context, id string, apply func(*User)) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	apply(u)
	return *u, nil
}

var _ Directory = (*Memory)(nil)
