package aegis

import (
	"time"

	"southwinds.dev/aegis/audit"
	"southwinds.dev/aegis/persist"
)

// Options configures a Vault. The secret store is the only required
// collaborator: either inject a constructed store or provide a
// StoreConfig for the factory to build one from.
type Options struct {
	// Store is the platform secret store the vault persists to.
	// Takes precedence over StoreConfig when both are set.
	Store persist.SecretStore

	// StoreConfig builds a store through the persist factory when
	// Store is nil.
	StoreConfig *persist.StoreConfig

	// Audit configures audit logging. Nil or disabled means no-op.
	Audit *audit.Config

	// AuditLogger injects an already constructed logger, overriding
	// Audit. Mainly for embedding and tests.
	AuditLogger audit.Logger

	// Clock overrides the wall-clock read used for expiry checks.
	// Nil means time.Now. Tests use this to exercise TTL behavior
	// without sleeping.
	Clock func() time.Time
}

// CheckerOptions configures an integrity Checker.
type CheckerOptions struct {
	// ResourceDir is the application's own bundled template root.
	// Paths under it are trusted without signature lookup. Empty
	// disables the built-in trust entry.
	ResourceDir string

	// TemplatePolicy validates template paths before any file I/O.
	// Nil applies DefaultTemplatePolicy.
	TemplatePolicy *PathPolicy

	// KeyPolicy validates signing key paths. Nil applies
	// DefaultKeyPolicy.
	KeyPolicy *PathPolicy

	// Audit configures audit logging. Nil or disabled means no-op.
	Audit *audit.Config

	// AuditLogger injects an already constructed logger, overriding
	// Audit.
	AuditLogger audit.Logger
}
