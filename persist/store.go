package persist

import (
	"fmt"

	"github.com/awnumar/memguard"

	"southwinds.dev/aegis/internal/crypto"
)

// SecretStore defines the platform secret-store boundary the vault
// delegates persistence to. Values arrive already serialized; a store
// is responsible for its own at-rest protection and durability across
// process restarts. The vault treats a store as plaintext-in/
// plaintext-out: whatever a store encrypts it must decrypt on Get.
type SecretStore interface {

	// Put stores value under key, overwriting any previous value.
	Put(key string, value []byte) error

	// Get retrieves the value stored under key.
	// Returns:
	// - The stored value.
	// - A boolean indicating whether the key exists.
	// - An error if the operation fails (a missing key is not an error).
	Get(key string) ([]byte, bool, error)

	// Delete removes the value stored under key. Deleting a key that
	// does not exist is not an error.
	Delete(key string) error

	// List returns the keys currently held by the store, in no
	// particular order.
	List() ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// StoreConfig provides configuration for different storage backends.
//
// Example:
//
//	config := StoreConfig{
//	    Type:   StoreTypeFileSystem,
//	    Config: map[string]interface{}{"base_path": "/var/lib/aegis"},
//	}
type StoreConfig struct {
	// Type specifies the storage backend to be used.
	// This field must be one of the predefined StoreType constants.
	Type StoreType `json:"type"`

	// Config contains configuration settings specific to the chosen
	// storage backend. The actual keys and values depend on the store
	// type in use; for StoreTypeS3 this includes keys like "endpoint"
	// and "bucket".
	Config map[string]interface{} `json:"config"`
}

// StoreType represents the different types of storage backends that can be used.
type StoreType string

// Supported storage types.
const (
	// StoreTypeFileSystem stores secrets on the local file system,
	// encrypted at rest with a passphrase-derived key.
	StoreTypeFileSystem StoreType = "filesystem"

	// StoreTypeS3 stores secrets in an S3-compatible object store.
	StoreTypeS3 StoreType = "s3"

	// StoreTypeMemory keeps secrets in process memory only. Intended
	// for tests and short-lived embedding; not durable.
	StoreTypeMemory StoreType = "memory"
)

// envelope performs the at-rest encryption shared by the durable
// stores: an argon2id key derived from a passphrase and a per-store
// salt, sealed with ChaCha20-Poly1305. The derived key lives in a
// memguard enclave and is only materialized for the duration of a
// seal/open call.
type envelope struct {
	key *memguard.Enclave
}

func newEnvelope(passphrase string, salt []byte) (*envelope, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("store passphrase is required")
	}

	saltEnclave := memguard.NewEnclave(salt)
	keyBuffer, err := crypto.DeriveKey([]byte(passphrase), saltEnclave)
	if err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}

	return &envelope{key: keyBuffer.Seal()}, nil
}

func (e *envelope) seal(plaintext []byte) ([]byte, error) {
	keyBuffer, err := e.key.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open store key: %w", err)
	}
	defer keyBuffer.Destroy()

	return crypto.EncryptValue(plaintext, keyBuffer.Bytes())
}

func (e *envelope) open(ciphertext []byte) ([]byte, error) {
	keyBuffer, err := e.key.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open store key: %w", err)
	}
	defer keyBuffer.Destroy()

	return crypto.DecryptValue(ciphertext, keyBuffer.Bytes())
}
