package goUserAuth

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goUserAuth/directory"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without keys must not validate")
	}
	tc := testConfig(t)
	if err := tc.Validate(); err != nil {
		t.Fatalf("test config: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"zero access ttl":      {func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		"refresh below access": {func(c *Config) { c.JWT.RefreshTTL = time.Minute }, "RefreshTTL must be >= AccessTTL"},
		"leeway too large":     {func(c *Config) { c.JWT.Leeway = time.Hour }, "Leeway"},
		"unknown method":       {func(c *Config) { c.JWT.SigningMethod = "none" }, "unsupported"},
		"short hs256 secret":   {func(c *Config) { c.JWT.SigningMethod = "hs256"; c.JWT.PrivateKey = []byte("short") }, "hs256"},
		"missing public key":   {func(c *Config) { c.JWT.PublicKey = nil }, "PublicKey"},
		"weak argon2 memory":   {func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		"max below min":        {func(c *Config) { c.Password.MinLength = 10; c.Password.MaxLength = 5 }, "MaxLength"},
		"empty password floor": {func(c *Config) { c.Password.MinLength = 0 }, "MinLength"},
		"unknown cache":        {func(c *Config) { c.Cache.Backend = "memcached" }, "Cache Backend"},
		"zero cache ttl":       {func(c *Config) { c.Cache.TTL = 0 }, "Cache TTL"},
		"sqlite without path":  {func(c *Config) { c.Directory.Backend = DirectorySQLite }, "SQLitePath"},
		"unknown directory":    {func(c *Config) { c.Directory.Backend = "ldap" }, "Directory Backend"},
		"no levels":            {func(c *Config) { c.Permission.Levels = nil }, "Levels"},
		"audit without buffer": {func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
		"negative op timeout":  {func(c *Config) { c.OperationTimeout = -time.Second }, "OperationTimeout"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestConfigHS256(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.JWT.PublicKey = nil
	e := buildEngine(t, cfg, nil)

	if _, err := e.CreateUser(t.Context(), "a@x.com", "pw"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	pair, err := e.LoginWithPassword(t.Context(), "a@x.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := e.ValidateAccess(t.Context(), pair.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuilderDoesNotAliasConfig(t *testing.T) {
	cfg := testConfig(t)
	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] ^= 0xff
	cfg.Permission.Levels[0] = "MUTATED"

	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if e.Permissions()[0] != "USER" {
		t.Fatalf("builder must copy levels, got %v", e.Permissions())
	}
}

func writeKeyPair(t *testing.T, dir string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "signing.key"), priv, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "signing.pub"), pub, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	writeKeyPair(t, dir)
	t.Setenv("UA_TEST_ISSUER", "accounts.example")

	path := filepath.Join(dir, "userauth.yaml")
	content := `
jwt:
  access_ttl: 10m
  refresh_ttl: 24h
  private_key_file: signing.key
  public_key_file: signing.pub
  issuer: ${UA_TEST_ISSUER}
password:
  memory: 8192
  time: 1
  parallelism: 1
  min_length: 8
cache:
  backend: none
directory:
  backend: sqlite
  sqlite_path: data/users.db
permission:
  levels: [viewer, editor, owner]
audit:
  enabled: true
operation_timeout: 2s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessTTL != 10*time.Minute || cfg.JWT.RefreshTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls: %v %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.JWT.Issuer != "accounts.example" {
		t.Fatalf("env expansion failed: %q", cfg.JWT.Issuer)
	}
	if len(cfg.JWT.PrivateKey) != ed25519.PrivateKeySize || len(cfg.JWT.PublicKey) != ed25519.PublicKeySize {
		t.Fatal("key files not loaded")
	}
	if cfg.Password.MinLength != 8 || cfg.Password.SaltLength != 16 {
		t.Fatalf("unexpected password config: %+v", cfg.Password)
	}
	if cfg.Cache.Backend != CacheNone {
		t.Fatalf("unexpected cache backend %q", cfg.Cache.Backend)
	}
	if cfg.Directory.SQLitePath != filepath.Join(dir, "data", "users.db") {
		t.Fatalf("sqlite path not resolved: %q", cfg.Directory.SQLitePath)
	}
	if strings.Join(cfg.Permission.Levels, ",") != "viewer,editor,owner" {
		t.Fatalf("unexpected levels %v", cfg.Permission.Levels)
	}
	if !cfg.Audit.Enabled || cfg.Audit.BufferSize != 1024 {
		t.Fatalf("unexpected audit config: %+v", cfg.Audit)
	}
	if cfg.OperationTimeout != 2*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.OperationTimeout)
	}
}

func TestLoadConfigFileTOML(t *testing.T) {
	dir := t.TempDir()
	writeKeyPair(t, dir)

	path := filepath.Join(dir, "userauth.toml")
	content := `
operation_timeout = "1s"

[jwt]
access_ttl = "5m"
private_key_file = "signing.key"
public_key_file = "signing.pub"

[password]
memory = 8192
time = 1
parallelism = 1

[cache]
backend = "memory"
ttl = "30s"
max_entries = 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.AccessTTL != 5*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttls: %v %v", cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	}
	if cfg.Cache.TTL != 30*time.Second || cfg.Cache.MaxEntries != 50 {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Directory.Backend != DirectoryMemory {
		t.Fatalf("expected default directory, got %q", cfg.Directory.Backend)
	}

	e, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build from file config: %v", err)
	}
	e.Close()
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfigFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	ini := filepath.Join(dir, "userauth.ini")
	if err := os.WriteFile(ini, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(ini); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported extension error, got %v", err)
	}

	badDuration := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badDuration, []byte("jwt:\n  access_ttl: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(badDuration); err == nil || !strings.Contains(err.Error(), "jwt.access_ttl") {
		t.Fatalf("expected duration error, got %v", err)
	}

	noKeys := filepath.Join(dir, "nokeys.yaml")
	if err := os.WriteFile(noKeys, []byte("cache:\n  backend: none\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(noKeys); err == nil || !strings.Contains(err.Error(), "validating") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("UA_TEST_A", "one")
	got := expandEnvVars("a=${UA_TEST_A} b=${UA_TEST_UNSET_VAR} c=$HOME")
	if got != "a=one b= c=$HOME" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestSecurityReportReflectsPosture(t *testing.T) {
	cfg := testConfig(t)
	cfg.Directory.Backend = DirectorySQLite
	cfg.Directory.SQLitePath = filepath.Join(t.TempDir(), "users.db")
	cfg.Audit.Enabled = true
	e := buildEngine(t, cfg, nil)

	report := e.SecurityReport()
	if report.SigningAlgorithm != "ed25519" || !report.AsymmetricSigning {
		t.Fatalf("unexpected signing posture: %+v", report)
	}
	if report.DirectoryBackend != "sqlite" || !report.DurableDirectory {
		t.Fatalf("unexpected directory posture: %+v", report)
	}
	if report.CacheBackend != "memory" || report.CacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache posture: %+v", report)
	}
	if !report.AuditEnabled || !report.AuditMayDrop {
		t.Fatalf("unexpected audit posture: %+v", report)
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("expected only the argon2 cost warning, got %v", report.Warnings)
	}
	if len(report.PermissionLevels) != 4 {
		t.Fatalf("unexpected levels %v", report.PermissionLevels)
	}

	injected := buildEngine(t, testConfig(t), func(b *Builder) { b.WithDirectory(directory.NewMemory()) })
	if got := injected.SecurityReport().DirectoryBackend; got != "injected" {
		t.Fatalf("expected injected directory, got %q", got)
	}
}
