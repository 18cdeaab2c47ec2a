// Package aegis is the trust and integrity layer of the document
// assistant: path validation and sanitization, secret storage with
// expiry on top of an injected platform secret store, and template
// integrity verification (checksums, digital signatures and a
// trusted-source registry).
//
// The package deliberately splits two failure philosophies. Misuse —
// empty keys, missing parameters, unreadable signing keys — fails loud
// with an error naming the violated precondition. Verification
// outcomes — a missing or mismatched checksum, a bad signature, an
// expired secret — fail closed to false/absent, never to an error, so
// that "cannot verify" and "verification failed" are indistinguishable
// to logic that gates on trust.
package aegis

import (
	"errors"
	"fmt"
	"time"

	"southwinds.dev/aegis/audit"
	"southwinds.dev/aegis/persist"
)

// Vault stores and retrieves secrets through an injected platform
// secret store. The vault treats values as plaintext at its own
// boundary; at-rest protection is the store's responsibility.
//
// A Vault is safe for concurrent use as long as the underlying store
// is.
type Vault struct {
	store       persist.SecretStore
	auditLogger audit.Logger
	ownsAudit   bool
	now         func() time.Time
}

// New creates a Vault from options. The store is required, either
// directly or via StoreConfig.
func New(options Options) (*Vault, error) {
	store := options.Store
	if store == nil {
		if options.StoreConfig == nil {
			return nil, errors.New("a secret store must be provided")
		}
		created, err := persist.NewStore(*options.StoreConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create secret store: %w", err)
		}
		store = created
	}

	auditLogger := options.AuditLogger
	ownsAudit := false
	if auditLogger == nil {
		logger, err := audit.NewLogger(options.Audit)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit logger: %w", err)
		}
		auditLogger = logger
		ownsAudit = true
	}

	now := options.Clock
	if now == nil {
		now = time.Now
	}

	return &Vault{
		store:       store,
		auditLogger: auditLogger,
		ownsAudit:   ownsAudit,
		now:         now,
	}, nil
}

// Close releases the store and any audit logger the vault created
// itself. Injected loggers are the caller's to close.
func (v *Vault) Close() error {
	var errs []error
	if err := v.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if v.ownsAudit {
		if err := v.auditLogger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListKeys returns the logical keys currently held by the store.
func (v *Vault) ListKeys() ([]string, error) {
	keys, err := v.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// auditLog records an event, never failing the calling operation over
// an audit write problem.
func (v *Vault) auditLog(action string, success bool, metadata map[string]interface{}) {
	_ = v.auditLogger.Log(action, success, metadata)
}
