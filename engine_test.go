package goUserAuth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goUserAuth/permission"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(t testing.TB) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func buildEngine(t testing.TB, cfg Config, configure func(*Builder)) *Engine {
	t.Helper()
	b := New().WithConfig(cfg)
	if configure != nil {
		configure(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

type engineBackend struct {
	name      string
	configure func(t *testing.T, cfg *Config, b *Builder)
}

func engineBackends() []engineBackend {
	return []engineBackend{
		{name: "memory"},
		{name: "redis", configure: func(t *testing.T, cfg *Config, b *Builder) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			b.WithRedis(client)
			cfg.Directory.Backend = DirectoryRedis
			cfg.Cache.Backend = CacheRedis
		}},
		{name: "sqlite", configure: func(t *testing.T, cfg *Config, _ *Builder) {
			cfg.Directory.Backend = DirectorySQLite
			cfg.Directory.SQLitePath = filepath.Join(t.TempDir(), "users.db")
		}},
	}
}

func forEachEngine(t *testing.T, fn func(t *testing.T, e *Engine)) {
	for _, backend := range engineBackends() {
		backend := backend
		t.Run(backend.name, func(t *testing.T) {
			cfg := testConfig(t)
			b := New()
			if backend.configure != nil {
				backend.configure(t, &cfg, b)
			}
			b.WithConfig(cfg)
			engine, err := b.Build()
			if err != nil {
				t.Fatalf("build engine: %v", err)
			}
			t.Cleanup(engine.Close)
			fn(t, engine)
		})
	}
}

func TestScenarioLoginRefreshReplayBurnsChain(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		if _, err := e.CreateUser(ctx, "a@x.com", "pw"); err != nil {
			t.Fatalf("create user: %v", err)
		}

		principal, err := e.ValidateUser(ctx, "a@x.com", "pw")
		if err != nil || principal == nil {
			t.Fatalf("validate user: %v %v", principal, err)
		}
		if principal.Permission != permission.User {
			t.Fatalf("new users start at USER, got %q", principal.Permission)
		}

		pair1, err := e.Login(ctx, principal.UserID)
		if err != nil {
			t.Fatalf("login: %v", err)
		}

		pair2, err := e.Refresh(ctx, pair1.RefreshToken)
		if err != nil {
			t.Fatalf("first refresh: %v", err)
		}
		if pair2.RefreshToken == pair1.RefreshToken {
			t.Fatal("refresh must rotate the refresh token")
		}

		if _, err := e.Refresh(ctx, pair1.RefreshToken); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("replayed refresh: expected ErrUnauthorized, got %v", err)
		}
		if _, err := e.Refresh(ctx, pair2.RefreshToken); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("successor after replay: expected ErrUnauthorized, got %v", err)
		}

		pub, err := e.FindPublicUserByID(ctx, principal.UserID)
		if err != nil {
			t.Fatalf("find public user: %v", err)
		}
		if pub.HasRefreshToken {
			t.Fatal("burned chain must leave no stored refresh hash")
		}

		// A fresh login starts a new chain.
		pair3, err := e.LoginWithPassword(ctx, "a@x.com", "pw")
		if err != nil {
			t.Fatalf("login after burn: %v", err)
		}
		if _, err := e.Refresh(ctx, pair3.RefreshToken); err != nil {
			t.Fatalf("refresh on new chain: %v", err)
		}
	})
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		if _, err := e.CreateUser(ctx, "race@x.com", "pw"); err != nil {
			t.Fatalf("create user: %v", err)
		}
		pair, err := e.LoginWithPassword(ctx, "race@x.com", "pw")
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}

		const n = 16
		var wg sync.WaitGroup
		wg.Add(n)

		results := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := e.Refresh(ctx, pair.RefreshToken)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		success := 0
		fail := 0
		for err := range results {
			if err == nil {
				success++
				continue
			}
			if errors.Is(err, ErrUnauthorized) {
				fail++
				continue
			}
			t.Fatalf("unexpected refresh error: %v", err)
		}

		if success != 1 {
			t.Fatalf("expected exactly one refresh success, got %d", success)
		}
		if fail != n-1 {
			t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
		}
	})
}

func TestValidateUserHidesWhichFieldFailed(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	if _, err := e.CreateUser(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	for _, tc := range []struct{ email, pw string }{
		{"a@x.com", "wrong"},
		{"ghost@x.com", "pw"},
		{"A@X.COM", "pw"},
	} {
		p, err := e.ValidateUser(ctx, tc.email, tc.pw)
		if err != nil || p != nil {
			t.Fatalf("%s/%s: expected nil principal and nil error, got %v %v", tc.email, tc.pw, p, err)
		}
		if _, err := e.LoginWithPassword(ctx, tc.email, tc.pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s/%s: expected ErrInvalidCredentials, got %v", tc.email, tc.pw, err)
		}
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricValidateUserFailure] != 6 {
		t.Fatalf("expected 6 validate failures, got %d", snap.Counters[MetricValidateUserFailure])
	}
}

func TestLoginReplacesPreviousRefreshToken(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	u, err := e.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, err := e.Login(ctx, u.ID)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := e.Login(ctx, u.ID)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, err := e.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("superseded refresh token: expected ErrUnauthorized, got %v", err)
	}
	// The mismatch above burned the chain, including the second login's token.
	if _, err := e.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected chain burned, got %v", err)
	}
}

func TestLoginUnknownPrincipal(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	if _, err := e.Login(context.Background(), "missing"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAccessTokenExpiresAfterTTL(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cfg := testConfig(t)
	e := buildEngine(t, cfg, func(b *Builder) { b.WithClock(clock.Now) })
	ctx := context.Background()

	if _, err := e.CreateUser(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := e.LoginWithPassword(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	clock.Advance(cfg.JWT.AccessTTL - time.Second)
	res, err := e.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("access before expiry: %v", err)
	}
	if !res.ExpiresAt.Equal(time.Unix(1_700_000_000, 0).Add(cfg.JWT.AccessTTL).UTC()) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}

	clock.Advance(2 * time.Second)
	if _, err := e.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("access after expiry: expected ErrUnauthorized, got %v", err)
	}

	// The refresh token outlives the access token.
	if _, err := e.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh after access expiry: %v", err)
	}
}

func TestTokenKindConfusionRejected(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	if _, err := e.CreateUser(ctx, "a@x.com", "pw"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := e.LoginWithPassword(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := e.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("access as refresh: expected ErrUnauthorized, got %v", err)
	}
	if _, err := e.ValidateAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh as access: expected ErrUnauthorized, got %v", err)
	}
	if _, err := e.Authorize(ctx, permission.User, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh used to authorize: expected ErrUnauthorized, got %v", err)
	}

	// Presenting the access token to refresh must not burn the chain.
	if _, err := e.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh after kind confusion: %v", err)
	}
}

func TestRefreshRejectsGarbageAndForeignTokens(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	other := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()

	u, err := other.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	foreign, err := other.Login(ctx, u.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for _, tok := range []string{"", "garbage", "a.b.c", foreign.RefreshToken} {
		if _, err := e.Refresh(ctx, tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", tok, err)
		}
	}
}

func TestAuthorizeLevels(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)

	cases := []struct {
		required, principal permission.Level
		want                bool
	}{
		{permission.Trial, permission.User, false},
		{permission.Trial, permission.Admin, true},
		{permission.Public, permission.User, true},
		{permission.User, permission.Admin, true},
		{permission.Admin, permission.Admin, true},
		{permission.Master, permission.Trial, false},
		{permission.User, "", false},
		{"ROOT", permission.Admin, false},
	}
	for _, tc := range cases {
		ok, err := e.AuthorizeLevel(tc.required, tc.principal)
		if ok != tc.want {
			t.Fatalf("authorize(%q, %q) = %v, want %v", tc.required, tc.principal, ok, tc.want)
		}
		if !ok && !errors.Is(err, ErrForbidden) {
			t.Fatalf("authorize(%q, %q): expected ErrForbidden, got %v", tc.required, tc.principal, err)
		}
	}
}

func TestAuthorizeWithAccessToken(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	u, err := e.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := e.Login(ctx, u.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	res, err := e.Authorize(ctx, permission.User, pair.AccessToken)
	if err != nil || res.UserID != u.ID {
		t.Fatalf("USER route: %v %v", res, err)
	}
	if res.Email != "a@x.com" {
		t.Fatalf("expected the access token to carry the email, got %q", res.Email)
	}
	if _, err := e.Authorize(ctx, permission.Trial, pair.AccessToken); !errors.Is(err, ErrForbidden) {
		t.Fatalf("TRIAL route: expected ErrForbidden, got %v", err)
	}
	if res, err := e.Authorize(ctx, permission.Public, ""); err != nil || res != nil {
		t.Fatalf("public route: expected pass-through, got %v %v", res, err)
	}
	if _, err := e.Authorize(ctx, permission.User, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing token: expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdatePermissionVisibleOnNextFind(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e *Engine) {
		ctx := context.Background()
		u, err := e.CreateUser(ctx, "a@x.com", "pw")
		if err != nil {
			t.Fatalf("create user: %v", err)
		}

		// Warm every cached view.
		if _, err := e.FindUserByID(ctx, u.ID); err != nil {
			t.Fatalf("find by id: %v", err)
		}
		if _, err := e.FindPublicUserByEmail(ctx, u.Email); err != nil {
			t.Fatalf("find public by email: %v", err)
		}
		if _, err := e.ListUsers(ctx); err != nil {
			t.Fatalf("list users: %v", err)
		}

		updated, err := e.UpdatePermission(ctx, u.ID, permission.Master)
		if err != nil {
			t.Fatalf("update permission: %v", err)
		}
		if updated.Permission != permission.Master {
			t.Fatalf("update result: got %q", updated.Permission)
		}

		byID, err := e.FindUserByID(ctx, u.ID)
		if err != nil || byID.Permission != permission.Master {
			t.Fatalf("find by id after update: %q %v", byID.Permission, err)
		}
		pub, err := e.FindPublicUserByEmail(ctx, u.Email)
		if err != nil || pub.Permission != permission.Master {
			t.Fatalf("find public by email after update: %q %v", pub.Permission, err)
		}
		list, err := e.ListUsers(ctx)
		if err != nil || len(list) != 1 || list[0].Permission != permission.Master {
			t.Fatalf("list after update: %+v %v", list, err)
		}

		// Newly issued credentials carry the new level.
		pair, err := e.LoginWithPassword(ctx, "a@x.com", "pw")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if _, err := e.Authorize(ctx, permission.Master, pair.AccessToken); err != nil {
			t.Fatalf("authorize MASTER after update: %v", err)
		}
	})
}

func TestUpdatePermissionErrors(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	u, err := e.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := e.UpdatePermission(ctx, u.ID, "ROOT"); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("unknown level: expected ErrInvalidPermission, got %v", err)
	}
	if _, err := e.UpdatePermission(ctx, u.ID, permission.Public); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("public level: expected ErrInvalidPermission, got %v", err)
	}
	if _, err := e.UpdatePermission(ctx, "missing", permission.Admin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Password.MinLength = 4
	e := buildEngine(t, cfg, nil)
	ctx := context.Background()

	if _, err := e.CreateUser(ctx, "a@x.com", "secret"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := e.CreateUser(ctx, "a@x.com", "secret"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate: expected ErrConflict, got %v", err)
	}
	if _, err := e.CreateUser(ctx, "b@x.com", "pw"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("short password: expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := e.CreateUser(ctx, "c@x.com", ""); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("empty password: expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := e.CreateUser(ctx, "", "secret"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty email: expected ErrInvalidInput, got %v", err)
	}

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricUserCreated] != 1 || snap.Counters[MetricUserDuplicate] != 1 {
		t.Fatalf("unexpected user counters: %+v", snap.Counters)
	}
}

func TestFindAndListUsers(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()

	if _, err := e.FindUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.FindPublicUserByEmail(ctx, "ghost@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, email := range []string{"c@x.com", "a@x.com", "b@x.com"} {
		if _, err := e.CreateUser(ctx, email, "pw"); err != nil {
			t.Fatalf("create %s: %v", email, err)
		}
	}
	list, err := e.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Email != "c@x.com" || list[2].Email != "b@x.com" {
		t.Fatalf("expected creation order, got %+v", list)
	}

	full, err := e.FindUserByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if full.PasswordHash == "" || full.PasswordHash == "pw" {
		t.Fatal("stored password must be a hash")
	}
}

func TestRevokeRefreshToken(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	u, err := e.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := e.Login(ctx, u.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := e.RevokeRefreshToken(ctx, u.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := e.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after revoke: expected ErrUnauthorized, got %v", err)
	}
	if _, err := e.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("access stays valid until expiry: %v", err)
	}
	if err := e.RevokeRefreshToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoke unknown: expected ErrNotFound, got %v", err)
	}
}

func TestRefreshCarriesCurrentPermission(t *testing.T) {
	e := buildEngine(t, testConfig(t), nil)
	ctx := context.Background()
	u, err := e.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := e.Login(ctx, u.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := e.UpdatePermission(ctx, u.ID, permission.Admin); err != nil {
		t.Fatalf("update: %v", err)
	}
	next, err := e.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	res, err := e.ValidateAccess(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Permission != permission.Admin {
		t.Fatalf("expected ADMIN after refresh, got %q", res.Permission)
	}
}

func TestCustomPermissionLevels(t *testing.T) {
	e := buildEngine(t, testConfig(t), func(b *Builder) {
		b.WithPermissionLevels("viewer", "editor", "owner")
	})
	ctx := context.Background()
	u, err := e.CreateUser(ctx, "a@x.com", "pw")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Permission != "viewer" {
		t.Fatalf("new users take the lowest level, got %q", u.Permission)
	}
	if ok, _ := e.AuthorizeLevel("editor", "owner"); !ok {
		t.Fatal("owner must satisfy editor")
	}
	if _, err := e.UpdatePermission(ctx, u.ID, permission.Admin); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("default level outside custom order: expected ErrInvalidPermission, got %v", err)
	}
}

func TestEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()
	if _, err := e.ValidateUser(ctx, "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Refresh(ctx, "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
	if e.AuditDropped() != 0 {
		t.Fatal("nil engine reports no drops")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig(t))
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRedisBackendsNeedClient(t *testing.T) {
	cfg := testConfig(t)
	cfg.Directory.Backend = DirectoryRedis
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected redis directory without client to fail")
	}

	cfg = testConfig(t)
	cfg.Cache.Backend = CacheRedis
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected redis cache without client to fail")
	}
}
