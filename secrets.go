package aegis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"southwinds.dev/aegis/audit"
)

// Derived-key prefixes for the typed secret kinds. The raw
// StoreSecureData namespace is shared with these; callers should not
// use keys with these prefixes directly.
const (
	apiKeyPrefix     = "api-key-"
	credentialPrefix = "credential-"
)

// secretEnvelope wraps a typed secret value together with its optional
// metadata and expiry before serialization to the store.
type secretEnvelope struct {
	Value     string            `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// StoreSecureData persists value under key. Both must be non-empty.
func (v *Vault) StoreSecureData(key, value string) error {
	if key == "" || value == "" {
		return errors.New("key and value must be provided")
	}

	if err := v.store.Put(key, []byte(value)); err != nil {
		v.auditLog(audit.ActionSecretStore, false, map[string]interface{}{"secret_key": key, "error": err.Error()})
		return fmt.Errorf("failed to store secure data: %w", err)
	}

	v.auditLog(audit.ActionSecretStore, true, map[string]interface{}{"secret_key": key})
	return nil
}

// GetSecureData retrieves the value stored under key. A missing key is
// reported through the boolean, not as an error.
func (v *Vault) GetSecureData(key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("key must be provided")
	}

	data, found, err := v.store.Get(key)
	if err != nil {
		v.auditLog(audit.ActionSecretGet, false, map[string]interface{}{"secret_key": key, "error": err.Error()})
		return "", false, fmt.Errorf("failed to retrieve secure data: %w", err)
	}

	v.auditLog(audit.ActionSecretGet, true, map[string]interface{}{"secret_key": key, "found": found})
	if !found {
		return "", false, nil
	}
	return string(data), true, nil
}

// DeleteSecureData removes the value stored under key. Deleting an
// absent key is not an error.
func (v *Vault) DeleteSecureData(key string) error {
	if key == "" {
		return errors.New("key must be provided")
	}

	if err := v.store.Delete(key); err != nil {
		v.auditLog(audit.ActionSecretDelete, false, map[string]interface{}{"secret_key": key, "error": err.Error()})
		return fmt.Errorf("failed to delete secure data: %w", err)
	}

	v.auditLog(audit.ActionSecretDelete, true, map[string]interface{}{"secret_key": key})
	return nil
}

// StoreSecureObject JSON-serializes data and persists it under key.
// Values round-trip exactly for JSON-representable types; anything
// else (times as anything richer than strings, functions, channels)
// will not survive the trip and is outside this method's contract.
func (v *Vault) StoreSecureObject(key string, data interface{}) error {
	if key == "" {
		return errors.New("key must be provided")
	}

	serialized, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to store secure object: %w", err)
	}

	return v.StoreSecureData(key, string(serialized))
}

// GetSecureObject retrieves the object stored under key into out,
// which must be a pointer. A missing key is reported through the
// boolean.
func (v *Vault) GetSecureObject(key string, out interface{}) (bool, error) {
	serialized, found, err := v.GetSecureData(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if err = json.Unmarshal([]byte(serialized), out); err != nil {
		return false, fmt.Errorf("failed to decode secure object: %w", err)
	}
	return true, nil
}

// StoreAPIKey persists an API key for service, optionally expiring
// after ttlDays (ttlDays <= 0 means no expiry) and carrying
// service-specific metadata alongside the key.
func (v *Vault) StoreAPIKey(service, key string, ttlDays int, metadata map[string]string) error {
	if service == "" || key == "" {
		return errors.New("service and key must be provided")
	}

	env := secretEnvelope{Value: key, Metadata: metadata}
	if ttlDays > 0 {
		expires := v.now().Add(time.Duration(ttlDays) * 24 * time.Hour)
		env.ExpiresAt = &expires
	}

	serialized, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	storageKey := apiKeyPrefix + service
	if err = v.store.Put(storageKey, serialized); err != nil {
		v.auditLog(audit.ActionSecretStore, false, map[string]interface{}{"secret_key": storageKey, "error": err.Error()})
		return fmt.Errorf("failed to store API key: %w", err)
	}

	v.auditLog(audit.ActionSecretStore, true, map[string]interface{}{"secret_key": storageKey})
	return nil
}

// GetAPIKey retrieves the API key stored for service. An expired key
// is treated as absent and proactively deleted from the store.
func (v *Vault) GetAPIKey(service string) (string, bool, error) {
	if service == "" {
		return "", false, errors.New("service must be provided")
	}
	return v.getEnvelope(apiKeyPrefix + service)
}

// GetAPIKeyMetadata retrieves the metadata stored alongside the API
// key for service, subject to the same expiry rule as GetAPIKey.
func (v *Vault) GetAPIKeyMetadata(service string) (map[string]string, bool, error) {
	if service == "" {
		return nil, false, errors.New("service must be provided")
	}

	env, found, err := v.loadEnvelope(apiKeyPrefix + service)
	if err != nil || !found {
		return nil, false, err
	}
	return env.Metadata, true, nil
}

// StoreCredentials persists a password for the (service, username)
// pair. All three parameters are required.
func (v *Vault) StoreCredentials(service, username, password string) error {
	if service == "" || username == "" || password == "" {
		return errors.New("service, username and password must be provided")
	}

	env := secretEnvelope{Value: password}
	serialized, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	storageKey := credentialKey(service, username)
	if err = v.store.Put(storageKey, serialized); err != nil {
		v.auditLog(audit.ActionSecretStore, false, map[string]interface{}{"secret_key": storageKey, "error": err.Error()})
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	v.auditLog(audit.ActionSecretStore, true, map[string]interface{}{"secret_key": storageKey})
	return nil
}

// GetCredentials retrieves the password stored for the
// (service, username) pair.
func (v *Vault) GetCredentials(service, username string) (string, bool, error) {
	if service == "" || username == "" {
		return "", false, errors.New("service and username must be provided")
	}
	return v.getEnvelope(credentialKey(service, username))
}

// DeleteAPIKey removes the API key stored for service.
func (v *Vault) DeleteAPIKey(service string) error {
	if service == "" {
		return errors.New("service must be provided")
	}
	return v.DeleteSecureData(apiKeyPrefix + service)
}

// DeleteCredentials removes the password stored for the
// (service, username) pair.
func (v *Vault) DeleteCredentials(service, username string) error {
	if service == "" || username == "" {
		return errors.New("service and username must be provided")
	}
	return v.DeleteSecureData(credentialKey(service, username))
}

func credentialKey(service, username string) string {
	return credentialPrefix + service + "-" + username
}

// getEnvelope loads an envelope and returns its value, applying the
// expiry rule.
func (v *Vault) getEnvelope(storageKey string) (string, bool, error) {
	env, found, err := v.loadEnvelope(storageKey)
	if err != nil || !found {
		return "", false, err
	}
	return env.Value, true, nil
}

// loadEnvelope reads and deserializes a typed secret. Expired entries
// are treated as absent, not as an error, and are deleted from the
// store as a side effect.
func (v *Vault) loadEnvelope(storageKey string) (*secretEnvelope, bool, error) {
	data, found, err := v.store.Get(storageKey)
	if err != nil {
		v.auditLog(audit.ActionSecretGet, false, map[string]interface{}{"secret_key": storageKey, "error": err.Error()})
		return nil, false, fmt.Errorf("failed to retrieve secure data: %w", err)
	}
	if !found {
		v.auditLog(audit.ActionSecretGet, true, map[string]interface{}{"secret_key": storageKey, "found": false})
		return nil, false, nil
	}

	var env secretEnvelope
	if err = json.Unmarshal(data, &env); err != nil {
		v.auditLog(audit.ActionSecretGet, false, map[string]interface{}{"secret_key": storageKey, "error": err.Error()})
		return nil, false, fmt.Errorf("failed to decode stored secret: %w", err)
	}

	if env.ExpiresAt != nil && v.now().After(*env.ExpiresAt) {
		// Expired entries are garbage; evict eagerly but do not let a
		// delete failure turn an absent secret into an error.
		_ = v.store.Delete(storageKey)
		v.auditLog(audit.ActionSecretGet, true, map[string]interface{}{"secret_key": storageKey, "found": false, "expired": true})
		return nil, false, nil
	}

	v.auditLog(audit.ActionSecretGet, true, map[string]interface{}{"secret_key": storageKey, "found": true})
	return &env, true, nil
}
