package aegis

import (
	"encoding/json"
	"errors"
	"fmt"

	"southwinds.dev/aegis/audit"
	"southwinds.dev/aegis/internal/crypto"
)

// ExportSecrets serializes every stored entry and encrypts the dump
// with the supplied passphrase. The salt is embedded in the output, so
// the result is self-contained: it can be imported into a vault backed
// by a different store without the originating store's derivation salt.
// Entries are exported as the store holds them, so typed secrets keep
// their envelopes and expiry.
func (v *Vault) ExportSecrets(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("an export passphrase must be provided")
	}

	keys, err := v.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to export secrets: %w", err)
	}

	dump := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, found, err := v.store.Get(key)
		if err != nil {
			v.auditLog(audit.ActionSecretsExport, false, map[string]interface{}{"secret_key": key, "error": err.Error()})
			return nil, fmt.Errorf("failed to export secrets: %w", err)
		}
		if !found {
			// Deleted between List and Get; skip.
			continue
		}
		dump[key] = value
	}

	serialized, err := json.Marshal(dump)
	if err != nil {
		return nil, fmt.Errorf("failed to export secrets: %w", err)
	}

	encrypted, err := crypto.EncryptWithPassphrase(serialized, passphrase)
	if err != nil {
		v.auditLog(audit.ActionSecretsExport, false, map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to export secrets: %w", err)
	}

	v.auditLog(audit.ActionSecretsExport, true, map[string]interface{}{"count": len(dump)})
	return encrypted, nil
}

// ImportSecrets decrypts a dump produced by ExportSecrets and stores
// every entry it contains, overwriting entries that share a key. A
// wrong passphrase fails authentication before anything is written.
func (v *Vault) ImportSecrets(data []byte, passphrase string) error {
	if passphrase == "" {
		return errors.New("an import passphrase must be provided")
	}

	serialized, err := crypto.DecryptWithPassphrase(data, passphrase)
	if err != nil {
		v.auditLog(audit.ActionSecretsImport, false, map[string]interface{}{"error": "decryption failed"})
		return fmt.Errorf("failed to import secrets: %w", err)
	}

	var dump map[string][]byte
	if err = json.Unmarshal(serialized, &dump); err != nil {
		v.auditLog(audit.ActionSecretsImport, false, map[string]interface{}{"error": "malformed export payload"})
		return fmt.Errorf("failed to import secrets: %w", err)
	}

	for key, value := range dump {
		if err = v.store.Put(key, value); err != nil {
			v.auditLog(audit.ActionSecretsImport, false, map[string]interface{}{"secret_key": key, "error": err.Error()})
			return fmt.Errorf("failed to import secrets: %w", err)
		}
	}

	v.auditLog(audit.ActionSecretsImport, true, map[string]interface{}{"count": len(dump)})
	return nil
}
