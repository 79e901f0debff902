package goUserAuth

import (
	"strings"

	"github.com/MrEthical07/goUserAuth/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PasswordConfigReport mirrors the Argon2 parameters in a SecurityReport.
type PasswordConfigReport = security.PasswordReport

// SecurityReport summarizes the settings the engine was built with. An
// injected directory or cache is reported as "injected".
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: strings.ToLower(e.config.JWT.SigningMethod),
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		Leeway:           e.config.JWT.Leeway,
		Password: security.PasswordReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
			MinLength:   e.config.Password.MinLength,
			MaxLength:   e.config.Password.MaxLength,
		},
		DirectoryBackend: e.directoryBackend,
		CacheBackend:     e.cacheBackend,
		CacheTTL:         e.config.Cache.TTL,
		PermissionLevels: e.config.Permission.Levels,
		AuditEnabled:     e.config.Audit.Enabled,
		AuditDropIfFull:  e.config.Audit.DropIfFull,
	})
}
