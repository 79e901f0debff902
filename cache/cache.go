package cache

import (
	"context"
	"errors"
)

// ErrUnavailable wraps backend failures. Callers treat it as a miss.
var ErrUnavailable = errors.New("cache: backend unavailable")

// Kind is the namespace of a cache entry.
type Kind string

const (
	KindByID          Kind = "by-id"
	KindByEmail       Kind = "by-email"
	KindPublicByID    Kind = "public-by-id"
	KindPublicByEmail Kind = "public-by-email"
	KindAll           Kind = "all"
)

// Key identifies one cache entry. Discriminator is empty for KindAll.
type Key struct {
	Kind          Kind
	Discriminator string
}

func (k Key) String() string {
	if k.Discriminator == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Discriminator
}

func ByID(id string) Key             { return Key{Kind: KindByID, Discriminator: id} }
func ByEmail(email string) Key       { return Key{Kind: KindByEmail, Discriminator: email} }
func PublicByID(id string) Key       { return Key{Kind: KindPublicByID, Discriminator: id} }
func PublicByEmail(email string) Key { return Key{Kind: KindPublicByEmail, Discriminator: email} }
func All() Key                       { return Key{Kind: KindAll} }

// KeysFor lists every key derived from a record with this id and email,
// plus the listing key. Mutations invalidate exactly this set.
func KeysFor(id, email string) []Key {
	return []Key{
		ByID(id),
		ByEmail(email),
		PublicByID(id),
		PublicByEmail(email),
		All(),
	}
}

// Cache stores opaque encoded values with a per-instance TTL.
//
// Invalidate advances the generation of every key it drops. A read-through
// caller takes Generation before loading from the source of truth and stores
// the loaded value with Fill, which refuses the write when the key was
// invalidated in between. Set writes unconditionally.
type Cache interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Generation(ctx context.Context, key Key) (uint64, error)
	Fill(ctx context.Context, key Key, value []byte, generation uint64) (bool, error)
	Set(ctx context.Context, key Key, value []byte) error
	Invalidate(ctx context.Context, keys ...Key) error
}

// Nop never stores anything; every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context, Key) ([]byte, bool, error)          { return nil, false, nil }
func (Nop) Generation(context.Context, Key) (uint64, error)         { return 0, nil }
func (Nop) Fill(context.Context, Key, []byte, uint64) (bool, error) { return false, nil }
func (Nop) Set(context.Context, Key, []byte) error                  { return nil }
func (Nop) Invalidate(context.Context, ...Key) error                { return nil }
