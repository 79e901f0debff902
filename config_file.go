package goUserAuth

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of Config. Durations are strings and key
// material is referenced by path.
type fileConfig struct {
	JWT struct {
		AccessTTL      string `yaml:"access_ttl" toml:"access_ttl"`
		RefreshTTL     string `yaml:"refresh_ttl" toml:"refresh_ttl"`
		SigningMethod  string `yaml:"signing_method" toml:"signing_method"`
		PrivateKeyFile string `yaml:"private_key_file" toml:"private_key_file"`
		PublicKeyFile  string `yaml:"public_key_file" toml:"public_key_file"`
		Issuer         string `yaml:"issuer" toml:"issuer"`
		Audience       string `yaml:"audience" toml:"audience"`
		Leeway         string `yaml:"leeway" toml:"leeway"`
	} `yaml:"jwt" toml:"jwt"`
	Password struct {
		Memory      uint32 `yaml:"memory" toml:"memory"`
		Time        uint32 `yaml:"time" toml:"time"`
		Parallelism uint8  `yaml:"parallelism" toml:"parallelism"`
		SaltLength  uint32 `yaml:"salt_length" toml:"salt_length"`
		KeyLength   uint32 `yaml:"key_length" toml:"key_length"`
		MinLength   int    `yaml:"min_length" toml:"min_length"`
		MaxLength   int    `yaml:"max_length" toml:"max_length"`
	} `yaml:"password" toml:"password"`
	Cache struct {
		Backend     string `yaml:"backend" toml:"backend"`
		TTL         string `yaml:"ttl" toml:"ttl"`
		MaxEntries  int    `yaml:"max_entries" toml:"max_entries"`
		RedisPrefix string `yaml:"redis_prefix" toml:"redis_prefix"`
	} `yaml:"cache" toml:"cache"`
	Directory struct {
		Backend     string `yaml:"backend" toml:"backend"`
		RedisPrefix string `yaml:"redis_prefix" toml:"redis_prefix"`
		SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path"`
	} `yaml:"directory" toml:"directory"`
	Permission struct {
		Levels []string `yaml:"levels" toml:"levels"`
	} `yaml:"permission" toml:"permission"`
	Audit struct {
		Enabled    bool `yaml:"enabled" toml:"enabled"`
		BufferSize int  `yaml:"buffer_size" toml:"buffer_size"`
		DropIfFull bool `yaml:"drop_if_full" toml:"drop_if_full"`
	} `yaml:"audit" toml:"audit"`
	Metrics struct {
		Enabled                 bool `yaml:"enabled" toml:"enabled"`
		EnableLatencyHistograms bool `yaml:"enable_latency_histograms" toml:"enable_latency_histograms"`
	} `yaml:"metrics" toml:"metrics"`
	OperationTimeout string `yaml:"operation_timeout" toml:"operation_timeout"`
}

// LoadConfigFile reads a YAML (.yaml, .yml) or TOML (.toml) file on top of
// DefaultConfig. ${VAR} references are expanded from the environment before
// parsing; unset variables expand to the empty string. Relative key file
// paths are resolved against the config file's directory.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data))

	fc := toFileConfig(defaultConfig())
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(expanded, &fc); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config file extension %q", ext)
	}

	cfg, err := fc.toConfig(filepath.Dir(path))
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func toFileConfig(cfg Config) fileConfig {
	var fc fileConfig
	fc.JWT.AccessTTL = cfg.JWT.AccessTTL.String()
	fc.JWT.RefreshTTL = cfg.JWT.RefreshTTL.String()
	fc.JWT.SigningMethod = cfg.JWT.SigningMethod
	fc.JWT.Issuer = cfg.JWT.Issuer
	fc.JWT.Audience = cfg.JWT.Audience
	fc.JWT.Leeway = cfg.JWT.Leeway.String()

	fc.Password.Memory = cfg.Password.Memory
	fc.Password.Time = cfg.Password.Time
	fc.Password.Parallelism = cfg.Password.Parallelism
	fc.Password.SaltLength = cfg.Password.SaltLength
	fc.Password.KeyLength = cfg.Password.KeyLength
	fc.Password.MinLength = cfg.Password.MinLength
	fc.Password.MaxLength = cfg.Password.MaxLength

	fc.Cache.Backend = string(cfg.Cache.Backend)
	fc.Cache.TTL = cfg.Cache.TTL.String()
	fc.Cache.MaxEntries = cfg.Cache.MaxEntries
	fc.Cache.RedisPrefix = cfg.Cache.RedisPrefix

	fc.Directory.Backend = string(cfg.Directory.Backend)
	fc.Directory.RedisPrefix = cfg.Directory.RedisPrefix
	fc.Directory.SQLitePath = cfg.Directory.SQLitePath

	fc.Permission.Levels = append([]string(nil), cfg.Permission.Levels...)

	fc.Audit.Enabled = cfg.Audit.Enabled
	fc.Audit.BufferSize = cfg.Audit.BufferSize
	fc.Audit.DropIfFull = cfg.Audit.DropIfFull

	fc.Metrics.Enabled = cfg.Metrics.Enabled
	fc.Metrics.EnableLatencyHistograms = cfg.Metrics.EnableLatencyHistograms

	fc.OperationTimeout = cfg.OperationTimeout.String()
	return fc
}

func (fc fileConfig) toConfig(baseDir string) (Config, error) {
	cfg := defaultConfig()

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"jwt.access_ttl", fc.JWT.AccessTTL, &cfg.JWT.AccessTTL},
		{"jwt.refresh_ttl", fc.JWT.RefreshTTL, &cfg.JWT.RefreshTTL},
		{"jwt.leeway", fc.JWT.Leeway, &cfg.JWT.Leeway},
		{"cache.ttl", fc.Cache.TTL, &cfg.Cache.TTL},
		{"operation_timeout", fc.OperationTimeout, &cfg.OperationTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing %s %q: %w", d.name, d.raw, err)
		}
		*d.dst = v
	}

	cfg.JWT.SigningMethod = fc.JWT.SigningMethod
	cfg.JWT.Issuer = fc.JWT.Issuer
	cfg.JWT.Audience = fc.JWT.Audience

	var err error
	if cfg.JWT.PrivateKey, err = readKeyFile(baseDir, fc.JWT.PrivateKeyFile); err != nil {
		return Config{}, fmt.Errorf("reading jwt.private_key_file: %w", err)
	}
	if cfg.JWT.PublicKey, err = readKeyFile(baseDir, fc.JWT.PublicKeyFile); err != nil {
		return Config{}, fmt.Errorf("reading jwt.public_key_file: %w", err)
	}

	cfg.Password = PasswordConfig{
		Memory:      fc.Password.Memory,
		Time:        fc.Password.Time,
		Parallelism: fc.Password.Parallelism,
		SaltLength:  fc.Password.SaltLength,
		KeyLength:   fc.Password.KeyLength,
		MinLength:   fc.Password.MinLength,
		MaxLength:   fc.Password.MaxLength,
	}

	cfg.Cache.Backend = CacheBackend(strings.ToLower(fc.Cache.Backend))
	cfg.Cache.MaxEntries = fc.Cache.MaxEntries
	cfg.Cache.RedisPrefix = fc.Cache.RedisPrefix

	cfg.Directory = DirectoryConfig{
		Backend:     DirectoryBackend(strings.ToLower(fc.Directory.Backend)),
		RedisPrefix: fc.Directory.RedisPrefix,
		SQLitePath:  fc.Directory.SQLitePath,
	}
	if cfg.Directory.SQLitePath != "" && !filepath.IsAbs(cfg.Directory.SQLitePath) {
		cfg.Directory.SQLitePath = filepath.Join(baseDir, cfg.Directory.SQLitePath)
	}

	cfg.Permission.Levels = append([]string(nil), fc.Permission.Levels...)
	cfg.Audit = AuditConfig{
		Enabled:    fc.Audit.Enabled,
		BufferSize: fc.Audit.BufferSize,
		DropIfFull: fc.Audit.DropIfFull,
	}
	cfg.Metrics = MetricsConfig{
		Enabled:                 fc.Metrics.Enabled,
		EnableLatencyHistograms: fc.Metrics.EnableLatencyHistograms,
	}
	return cfg, nil
}

func readKeyFile(baseDir, path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return os.ReadFile(path)
}
