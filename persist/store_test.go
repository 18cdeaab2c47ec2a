package persist

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testNamespace  = "test-namespace"
	testPassphrase = "test-passphrase-for-store-suite"
)

// Test the common SecretStore functionality
func testStoreImplementation(t *testing.T, store SecretStore) {
	value := []byte("the-secret-value")
	binaryValue := []byte{0x00, 0x01, 0xff, 0xfe, 0x7f}

	t.Run("PutAndGet", func(t *testing.T) {
		err := store.Put("basic-key", value)
		require.NoError(t, err)

		loaded, found, err := store.Get("basic-key")
		require.NoError(t, err)
		assert.True(t, found, "Stored key should be found")
		assert.Equal(t, value, loaded, "Loaded value should match stored value")
	})

	t.Run("GetMissing", func(t *testing.T) {
		loaded, found, err := store.Get("never-stored")
		require.NoError(t, err, "Missing key should not be an error")
		assert.False(t, found, "Missing key should report not found")
		assert.Nil(t, loaded)
	})

	t.Run("EmptyKeyRejected", func(t *testing.T) {
		assert.Error(t, store.Put("", value))
		_, _, err := store.Get("")
		assert.Error(t, err)
		assert.Error(t, store.Delete(""))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Put("versioned", []byte("v1")))
		require.NoError(t, store.Put("versioned", []byte("v2")))

		loaded, found, err := store.Get("versioned")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("v2"), loaded, "Overwrite should replace the value")
	})

	t.Run("BinaryValues", func(t *testing.T) {
		require.NoError(t, store.Put("binary", binaryValue))

		loaded, found, err := store.Get("binary")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, binaryValue, loaded, "Binary values should survive the round trip")
	})

	t.Run("KeysWithSpecialCharacters", func(t *testing.T) {
		// Keys carry arbitrary content; the store must not let them
		// leak into its physical layout.
		keys := []string{
			"path/like/key",
			"dots..and..more",
			"spaces in key",
			"unicode-ключ-钥匙",
		}
		for _, key := range keys {
			require.NoError(t, store.Put(key, []byte(key)))

			loaded, found, err := store.Get(key)
			require.NoError(t, err)
			assert.True(t, found, "Key %q should be found", key)
			assert.Equal(t, []byte(key), loaded)

			require.NoError(t, store.Delete(key))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Put("doomed", value))
		require.NoError(t, store.Delete("doomed"))

		_, found, err := store.Get("doomed")
		require.NoError(t, err)
		assert.False(t, found, "Deleted key should be gone")

		// Deleting an absent key is not an error.
		assert.NoError(t, store.Delete("doomed"))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put("list-a", value))
		require.NoError(t, store.Put("list-b", value))

		keys, err := store.List()
		require.NoError(t, err)

		sort.Strings(keys)
		assert.Contains(t, keys, "list-a")
		assert.Contains(t, keys, "list-b")
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				key := fmt.Sprintf("concurrent-%d", n)
				if err := store.Put(key, []byte(key)); err != nil {
					t.Errorf("Concurrent put failed: %v", err)
					return
				}
				loaded, found, err := store.Get(key)
				if err != nil || !found {
					t.Errorf("Concurrent get failed: found=%t err=%v", found, err)
					return
				}
				if string(loaded) != key {
					t.Errorf("Concurrent value mismatch for %s", key)
				}
			}(i)
		}
		wg.Wait()
	})
}

func TestValidateNamespace(t *testing.T) {
	valid := []string{"default", "tenant-1", "Prod_2026"}
	for _, namespace := range valid {
		assert.NoError(t, validateNamespace(namespace), "Namespace %q should be valid", namespace)
	}

	invalid := []string{
		"",
		"has space",
		"dot../traversal",
		"fwd/slash",
		"back\\slash",
	}
	for _, namespace := range invalid {
		assert.Error(t, validateNamespace(namespace), "Namespace %q should be rejected", namespace)
	}
}

func TestNewStoreUnknownType(t *testing.T) {
	_, err := NewStore(StoreConfig{Type: "etcd"})
	assert.Error(t, err)
}

func TestNewStoreMissingOptions(t *testing.T) {
	_, err := NewStore(StoreConfig{Type: StoreTypeFileSystem})
	assert.Error(t, err, "Filesystem store requires base_path")

	_, err = NewStore(StoreConfig{Type: StoreTypeS3})
	assert.Error(t, err, "S3 store requires endpoint and bucket")
}
