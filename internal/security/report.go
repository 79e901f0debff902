package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

// Report is a read-only summary of the security-relevant configuration.
type Report struct {
	SigningAlgorithm  string
	AsymmetricSigning bool
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	Leeway            time.Duration
	Argon2            PasswordReport
	DirectoryBackend  string
	DurableDirectory  bool
	CacheBackend      string
	CacheTTL          time.Duration
	PermissionLevels  []string
	AuditEnabled      bool
	AuditMayDrop      bool

	// Warnings lists settings that are valid but weaker than the defaults.
	Warnings []string
}

type ReportInput struct {
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	Leeway           time.Duration
	Password         PasswordReport
	DirectoryBackend string
	CacheBackend     string
	CacheTTL         time.Duration
	PermissionLevels []string
	AuditEnabled     bool
	AuditDropIfFull  bool
}

const (
	recommendedMaxAccessTTL = time.Hour
	recommendedArgonMemory  = 64 * 1024
	recommendedArgonTime    = 3
)

func BuildReport(input ReportInput) Report {
	asymmetric := input.SigningAlgorithm == "ed25519" || input.SigningAlgorithm == "rs256"

	cacheTTL := input.CacheTTL
	if input.CacheBackend == "none" {
		cacheTTL = 0
	}

	r := Report{
		SigningAlgorithm:  input.SigningAlgorithm,
		AsymmetricSigning: asymmetric,
		AccessTTL:         input.AccessTTL,
		RefreshTTL:        input.RefreshTTL,
		Leeway:            input.Leeway,
		Argon2:            input.Password,
		DirectoryBackend:  input.DirectoryBackend,
		DurableDirectory:  input.DirectoryBackend == "redis" || input.DirectoryBackend == "sqlite",
		CacheBackend:      input.CacheBackend,
		CacheTTL:          cacheTTL,
		PermissionLevels:  append([]string(nil), input.PermissionLevels...),
		AuditEnabled:      input.AuditEnabled,
		AuditMayDrop:      input.AuditEnabled && input.AuditDropIfFull,
	}

	if !asymmetric {
		r.Warnings = append(r.Warnings, "shared-secret signing: every verifier can also mint credentials")
	}
	if input.AccessTTL > recommendedMaxAccessTTL {
		r.Warnings = append(r.Warnings, "access credentials live longer than one hour and cannot be revoked before expiry")
	}
	if input.Password.Memory < recommendedArgonMemory || input.Password.Time < recommendedArgonTime {
		r.Warnings = append(r.Warnings, "argon2id parameters are below the default cost")
	}
	if !r.DurableDirectory {
		r.Warnings = append(r.Warnings, "in-memory directory loses every user on restart")
	}
	return r
}
