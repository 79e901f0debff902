package goUserAuth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goUserAuth/cache"
	"github.com/MrEthical07/goUserAuth/directory"
	"github.com/MrEthical07/goUserAuth/internal/audit"
	"github.com/MrEthical07/goUserAuth/internal/users"
	"github.com/MrEthical07/goUserAuth/jwt"
	"github.com/MrEthical07/goUserAuth/password"
	"github.com/MrEthical07/goUserAuth/permission"
)

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory directory.Directory
	cache     cache.Cache
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the redis directory and cache backends.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory injects a directory, overriding Config.Directory.Backend.
// The engine does not close an injected directory.
func (b *Builder) WithDirectory(d directory.Directory) *Builder {
	b.directory = d
	return b
}

// WithCache injects a cache, overriding Config.Cache.Backend.
func (b *Builder) WithCache(c cache.Cache) *Builder {
	b.cache = c
	return b
}

// WithPermissionLevels replaces Config.Permission.Levels, lowest first.
func (b *Builder) WithPermissionLevels(levels ...permission.Level) *Builder {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	b.config.Permission.Levels = out
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Without it, logs are discarded.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the clock used for credential timestamps and the
// in-memory cache.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- PERMISSION REGISTRY --------
	levels := make([]permission.Level, len(cfg.Permission.Levels))
	for i, l := range cfg.Permission.Levels {
		levels[i] = permission.Level(l)
	}
	registry, err := permission.NewRegistryFrom(levels...)
	if err != nil {
		return nil, err
	}
	engine.registry = registry
	engine.guard = permission.NewGuard(registry)

	// -------- DIRECTORY --------
	dir, err := b.buildDirectory(cfg, engine)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.directory = dir

	// -------- CACHE --------
	c, err := b.buildCache(cfg, engine)
	if err != nil {
		engine.Close()
		return nil, err
	}

	usersLogger := logger.With("component", "users")
	engine.users = users.New(dir, c, users.Hooks{
		CacheHit:  func() { engine.metricInc(MetricCacheHit) },
		CacheMiss: func() { engine.metricInc(MetricCacheMiss) },
		Warn: func(msg string, args ...any) {
			usersLogger.Warn(msg, args...)
			engine.emitAudit(context.Background(), auditEventCacheDegraded, false, "", auditErrUnavailable, func() map[string]string {
				return map[string]string{"reason": msg}
			})
		},
	})

	// -------- CREDENTIALS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxLength:   cfg.Password.MaxLength,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           b.now,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	if !jm.CanSign() {
		engine.Close()
		return nil, errors.New("JWT PrivateKey required for signing")
	}
	engine.jwtManager = jm

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil && b.logger != nil {
		sink = NewSlogSink(b.logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   auditCriticalEvents,
	}, sink)

	engine.initFlows()
	engine.directoryBackend = describeDirectory(cfg, b.directory != nil)
	engine.cacheBackend = describeCache(cfg, b.cache != nil)

	b.built = true
	logger.Info("engine built",
		"directory", engine.directoryBackend,
		"cache", engine.cacheBackend,
		"signing_method", cfg.JWT.SigningMethod,
		"levels", len(levels),
	)

	return engine, nil
}

func (b *Builder) buildDirectory(cfg Config, engine *Engine) (directory.Directory, error) {
	if b.directory != nil {
		return b.directory, nil
	}
	switch cfg.Directory.Backend {
	case DirectoryRedis:
		if b.redis == nil {
			return nil, errors.New("redis directory requires a redis client")
		}
		return directory.NewRedis(b.redis, cfg.Directory.RedisPrefix), nil
	case DirectorySQLite:
		d, err := directory.OpenSQLite(context.Background(), cfg.Directory.SQLitePath, engine.logger)
		if err != nil {
			return nil, err
		}
		engine.closers = append(engine.closers, d.Close)
		return d, nil
	default:
		var opts []directory.MemoryOption
		if b.now != nil {
			opts = append(opts, directory.WithClock(b.now))
		}
		return directory.NewMemory(opts...), nil
	}
}

func (b *Builder) buildCache(cfg Config, engine *Engine) (cache.Cache, error) {
	if b.cache != nil {
		return b.cache, nil
	}
	switch cfg.Cache.Backend {
	case CacheNone:
		return cache.Nop{}, nil
	case CacheRedis:
		if b.redis == nil {
			return nil, errors.New("redis cache requires a redis client")
		}
		return cache.NewRedis(b.redis, cfg.Cache.RedisPrefix, cfg.Cache.TTL), nil
	default:
		opts := []cache.MemoryOption{}
		if cfg.Cache.MaxEntries > 0 {
			opts = append(opts, cache.WithMaxEntries(cfg.Cache.MaxEntries))
		}
		if b.now != nil {
			opts = append(opts, cache.WithClock(b.now))
		}
		m := cache.NewMemory(cfg.Cache.TTL, opts...)
		engine.closers = append(engine.closers, func() error {
			m.Close()
			return nil
		})
		return m, nil
	}
}

func describeDirectory(cfg Config, injected bool) string {
	if injected {
		return "injected"
	}
	return string(cfg.Directory.Backend)
}

func describeCache(cfg Config, injected bool) string {
	if injected {
		return "injected"
	}
	return string(cfg.Cache.Backend)
}
