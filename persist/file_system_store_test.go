package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSystemStore(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace, testPassphrase, false)
	require.NoError(t, err, "Failed to create FileSystemStore")
	defer store.Close()

	testStoreImplementation(t, store)
}

func TestFileSystemStoreDefaultNamespace(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, "", testPassphrase, false)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("k", []byte("v")))

	_, err = os.Stat(filepath.Join(baseDir, "default", "secrets"))
	assert.NoError(t, err, "Empty namespace should fall back to 'default'")
}

func TestFileSystemStoreInvalidNamespace(t *testing.T) {
	_, err := NewFileSystemStore(t.TempDir(), "../escape", testPassphrase, false)
	assert.Error(t, err)
}

func TestFileSystemStorePersistsAcrossReopen(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace, testPassphrase, false)
	require.NoError(t, err)
	require.NoError(t, store.Put("durable", []byte("survives restart")))
	require.NoError(t, store.Close())

	// Same base path and passphrase: the salt is reloaded and the
	// stored value decrypts.
	reopened, err := NewFileSystemStore(baseDir, testNamespace, testPassphrase, false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, found, err := reopened.Get("durable")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("survives restart"), loaded)
}

func TestFileSystemStoreWrongPassphrase(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace, testPassphrase, false)
	require.NoError(t, err)
	require.NoError(t, store.Put("protected", []byte("plaintext")))
	require.NoError(t, store.Close())

	wrong, err := NewFileSystemStore(baseDir, testNamespace, "not-the-passphrase", false)
	require.NoError(t, err, "Opening with a wrong passphrase is not detectable until decryption")
	defer wrong.Close()

	_, _, err = wrong.Get("protected")
	assert.Error(t, err, "Decryption with a wrong passphrase must fail")
}

func TestFileSystemStoreValuesEncryptedAtRest(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace, testPassphrase, false)
	require.NoError(t, err)
	defer store.Close()

	plaintext := "very-recognizable-plaintext-value"
	require.NoError(t, store.Put("at-rest", []byte(plaintext)))

	secretsDir := filepath.Join(baseDir, testNamespace, "secrets")
	entries, err := os.ReadDir(secretsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(secretsDir, entry.Name()))
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(data), plaintext),
			"Plaintext must not appear in the on-disk file %s", entry.Name())
	}
}

func TestFileSystemStoreSecretFilePermissions(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStore(baseDir, testNamespace, testPassphrase, false)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("perm-check", []byte("v")))

	secretsDir := filepath.Join(baseDir, testNamespace, "secrets")
	entries, err := os.ReadDir(secretsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, FilePermissions, info.Mode().Perm(), "Secret files should be owner-only")
}

func TestFileSystemStoreFromConfig(t *testing.T) {
	baseDir := t.TempDir()

	store, err := NewFileSystemStoreFromConfig(StoreConfig{
		Type: StoreTypeFileSystem,
		Config: map[string]interface{}{
			"base_path":  baseDir,
			"namespace":  testNamespace,
			"passphrase": testPassphrase,
		},
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("from-config", []byte("v")))

	loaded, found, err := store.Get("from-config")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), loaded)
}
