package persist

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"southwinds.dev/aegis/internal/mem"
	"southwinds.dev/aegis/internal/misc"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700

	secretFileExt = ".secret"
)

// FileSystemStore implements SecretStore on the local file system.
// Values are encrypted at rest with a key derived from a passphrase
// and a per-store salt (argon2id + ChaCha20-Poly1305); one file per
// secret under the namespace directory.
type FileSystemStore struct {
	basePath      string
	namespace     string
	namespacePath string // basePath/namespace/
	secretsDir    string // basePath/namespace/secrets/
	saltPath      string // basePath/namespace/derivation.salt
	configPath    string // basePath/namespace/store.json
	env           *envelope
	memLocked     bool
}

// storeManifest records store-level metadata written once on init.
type storeManifest struct {
	Version    string    `json:"version"`
	Namespace  string    `json:"namespace"`
	CreatedAt  time.Time `json:"created_at"`
	Structure  string    `json:"structure_version"`
	LastAccess time.Time `json:"last_access"`
}

// NewFileSystemStore initializes and returns a new FileSystemStore.
// The namespace defaults to "default" when empty. A derivation salt is
// created on first use and reused afterwards; losing it renders the
// stored secrets unrecoverable.
func NewFileSystemStore(basePath, namespace, passphrase string, lockMemory bool) (*FileSystemStore, error) {
	if namespace == "" {
		namespace = "default"
	}

	// Validate namespace (basic security check)
	if err := validateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}

	namespacePath := filepath.Join(basePath, namespace)

	fs := &FileSystemStore{
		basePath:      basePath,
		namespace:     namespace,
		namespacePath: namespacePath,
		secretsDir:    filepath.Join(namespacePath, "secrets"),
		saltPath:      filepath.Join(namespacePath, "derivation.salt"),
		configPath:    filepath.Join(namespacePath, "store.json"),
	}

	for _, dir := range []string{fs.namespacePath, fs.secretsDir} {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	salt, err := fs.loadOrCreateSalt()
	if err != nil {
		return nil, err
	}

	env, err := newEnvelope(passphrase, salt)
	if err != nil {
		return nil, err
	}
	fs.env = env

	if err = fs.initializeManifest(); err != nil {
		return nil, fmt.Errorf("failed to initialize store manifest: %w", err)
	}

	if lockMemory {
		if _, err = mem.Lock(); err == nil {
			fs.memLocked = true
		}
	}

	return fs, nil
}

// NewFileSystemStoreFromConfig creates a FileSystemStore from StoreConfig
func NewFileSystemStoreFromConfig(config StoreConfig) (*FileSystemStore, error) {
	basePath := stringOption(config.Config, "base_path")
	if basePath == "" {
		return nil, fmt.Errorf("filesystem storage requires 'base_path' in config")
	}

	return NewFileSystemStore(
		basePath,
		stringOption(config.Config, "namespace"),
		stringOption(config.Config, "passphrase"),
		boolOption(config.Config, "lock_memory"),
	)
}

func (fs *FileSystemStore) loadOrCreateSalt() ([]byte, error) {
	salt, err := os.ReadFile(fs.saltPath)
	if err == nil {
		if len(salt) < misc.SaltSize {
			return nil, fmt.Errorf("derivation salt is corrupt (got %d bytes)", len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read derivation salt: %w", err)
	}

	salt = make([]byte, misc.SaltSize)
	if _, err = rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate derivation salt: %w", err)
	}
	if err = writeSecureFile(fs.saltPath, salt, FilePermissions); err != nil {
		return nil, fmt.Errorf("failed to persist derivation salt: %w", err)
	}
	return salt, nil
}

func (fs *FileSystemStore) initializeManifest() error {
	if _, err := os.Stat(fs.configPath); os.IsNotExist(err) {
		manifest := storeManifest{
			Version:    "1.0.0",
			Namespace:  fs.namespace,
			CreatedAt:  time.Now(),
			LastAccess: time.Now(),
			Structure:  "v1",
		}

		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return err
		}

		return writeSecureFile(fs.configPath, data, FilePermissions)
	}
	return nil
}

// secretPath maps an arbitrary key to a file path. Keys are encoded so
// that no key content can influence the directory layout.
func (fs *FileSystemStore) secretPath(key string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(key))
	return filepath.Join(fs.secretsDir, encoded+secretFileExt)
}

// Put stores the value under key, encrypted at rest.
func (fs *FileSystemStore) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	sealed, err := fs.env.seal(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	return writeSecureFile(fs.secretPath(key), sealed, FilePermissions)
}

// Get retrieves and decrypts the value stored under key.
func (fs *FileSystemStore) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("key cannot be empty")
	}

	sealed, err := os.ReadFile(fs.secretPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read secret: %w", err)
	}

	value, err := fs.env.open(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return value, true, nil
}

// Delete removes the value stored under key. Missing keys are ignored.
func (fs *FileSystemStore) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if err := os.Remove(fs.secretPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// List returns the decoded keys of all stored secrets.
func (fs *FileSystemStore) List() ([]string, error) {
	entries, err := os.ReadDir(fs.secretsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, secretFileExt) {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, secretFileExt))
		if err != nil {
			// Not one of ours; skip rather than fail the whole listing.
			continue
		}
		keys = append(keys, string(decoded))
	}
	return keys, nil
}

// Close releases the memory lock if one was taken.
func (fs *FileSystemStore) Close() error {
	if fs.memLocked {
		fs.memLocked = false
		return mem.Unlock()
	}
	return nil
}

func writeSecureFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err = tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
