package goUserAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goUserAuth/permission"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what you need; the Builder validates it once at Build.
type Config struct {
	JWT        JWTConfig
	Password   PasswordConfig
	Cache      CacheConfig
	Directory  DirectoryConfig
	Permission PermissionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// OperationTimeout bounds each Engine call. Zero disables the bound.
	OperationTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls credential signing and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "rs256", "hs256" for tests
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and length limits in bytes.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int // 0 selects password.DefaultMaxPasswordBytes
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheBackend selects the read-through cache implementation.
type CacheBackend string

const (
	CacheNone   CacheBackend = "none"
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig controls the read-through cache in front of the directory.
type CacheConfig struct {
	Backend     CacheBackend
	TTL         time.Duration
	MaxEntries  int
	RedisPrefix string
}

/*
====================================
DIRECTORY CONFIG
====================================
*/

// DirectoryBackend selects the built-in directory when none is injected.
type DirectoryBackend string

const (
	DirectoryMemory DirectoryBackend = "memory"
	DirectoryRedis  DirectoryBackend = "redis"
	DirectorySQLite DirectoryBackend = "sqlite"
)

// DirectoryConfig selects and parameterizes the built-in directory.
// Builder.WithDirectory takes precedence over Backend.
type DirectoryConfig struct {
	Backend     DirectoryBackend
	RedisPrefix string
	SQLitePath  string
}

/*
====================================
PERMISSION CONFIG
====================================
*/

// PermissionConfig lists levels from least to most privileged. The first
// level is assigned to new users.
type PermissionConfig struct {
	Levels []string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher. DropIfFull never applies
// to refresh reuse or authorization denials.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT key material is left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	levels := make([]string, len(permission.DefaultLevels))
	for i, l := range permission.DefaultLevels {
		levels[i] = string(l)
	}
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   1,
			MaxLength:   1024,
		},
		Cache: CacheConfig{
			Backend:     CacheMemory,
			TTL:         5 * time.Minute,
			MaxEntries:  10000,
			RedisPrefix: "uac",
		},
		Directory: DirectoryConfig{
			Backend:     DirectoryMemory,
			RedisPrefix: "ua",
		},
		Permission: PermissionConfig{
			Levels: levels,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		OperationTimeout: 5 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Permission.Levels = append([]string(nil), cfg.Permission.Levels...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	switch strings.ToLower(c.JWT.SigningMethod) {
	case "ed25519", "rs256":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New(c.JWT.SigningMethod + " requires PublicKey")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New(c.JWT.SigningMethod + " requires PrivateKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey secret of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < 0 || (c.Password.MaxLength > 0 && c.Password.MaxLength < c.Password.MinLength) {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Cache
	switch c.Cache.Backend {
	case CacheNone:
	case CacheMemory, CacheRedis:
		if c.Cache.TTL <= 0 {
			return errors.New("Cache TTL must be > 0")
		}
	default:
		return errors.New("Cache Backend must be 'none', 'memory' or 'redis'")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("Cache MaxEntries must be >= 0")
	}

	// Directory
	switch c.Directory.Backend {
	case DirectoryMemory, DirectoryRedis:
	case DirectorySQLite:
		if c.Directory.SQLitePath == "" {
			return errors.New("Directory SQLitePath is required for the sqlite backend")
		}
	default:
		return errors.New("Directory Backend must be 'memory', 'redis' or 'sqlite'")
	}

	// Permission
	if len(c.Permission.Levels) == 0 {
		return errors.New("Permission Levels must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.OperationTimeout < 0 {
		return errors.New("OperationTimeout must be >= 0")
	}

	return nil
}
