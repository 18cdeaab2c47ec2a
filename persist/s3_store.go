package persist

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"southwinds.dev/aegis/internal/misc"
)

const (
	ctxTimeout = 10 * time.Second
)

// S3Store implements SecretStore using an S3-compatible object store
// (MinIO client). Values are encrypted client-side with the same
// passphrase-derived envelope the filesystem store uses, so the bucket
// operator never sees plaintext.
//
// Object layout:
//
//	bucketName/
//	├── [keyPrefix/]namespace/derivation.salt
//	└── [keyPrefix/]namespace/secrets/<encoded-key>.secret
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
	namespace  string
	env        *envelope
}

// S3Config holds the connection settings for an S3-backed store.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	KeyPrefix       string `json:"key_prefix"`
	Namespace       string `json:"namespace"`
	Passphrase      string `json:"-"` // never serialized
}

// NewS3Store initializes an S3Store, ensuring the bucket exists and
// loading or creating the namespace derivation salt.
func NewS3Store(config S3Config) (*S3Store, error) {
	namespace := config.Namespace
	if namespace == "" {
		namespace = "default"
	}

	if err := validateNamespace(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}

	endpoint := config.Endpoint
	useSSL := config.UseSSL
	// Accept scheme-qualified endpoints; the scheme wins over UseSSL.
	if strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimPrefix(endpoint, "https://")
		useSSL = true
	} else if strings.HasPrefix(endpoint, "http://") {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		useSSL = false
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: useSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	s3 := &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  strings.Trim(config.KeyPrefix, "/"),
		namespace:  namespace,
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, s3.bucketName, minio.MakeBucketOptions{Region: config.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", s3.bucketName, err)
		}
	}

	salt, err := s3.loadOrCreateSalt(ctx)
	if err != nil {
		return nil, err
	}

	env, err := newEnvelope(config.Passphrase, salt)
	if err != nil {
		return nil, err
	}
	s3.env = env

	return s3, nil
}

// NewS3StoreFromConfig creates an S3Store from StoreConfig
func NewS3StoreFromConfig(config StoreConfig) (*S3Store, error) {
	s3Config := S3Config{
		Endpoint:        stringOption(config.Config, "endpoint"),
		AccessKeyID:     stringOption(config.Config, "access_key_id"),
		SecretAccessKey: stringOption(config.Config, "secret_access_key"),
		UseSSL:          boolOption(config.Config, "use_ssl"),
		Region:          stringOption(config.Config, "region"),
		Bucket:          stringOption(config.Config, "bucket"),
		KeyPrefix:       stringOption(config.Config, "key_prefix"),
		Namespace:       stringOption(config.Config, "namespace"),
		Passphrase:      stringOption(config.Config, "passphrase"),
	}

	if s3Config.Endpoint == "" || s3Config.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires 'endpoint' and 'bucket' in config")
	}

	return NewS3Store(s3Config)
}

// objectKey builds the namespaced object key for a logical secret key.
func (s *S3Store) objectKey(key string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(key))
	return s.namespacedKey("secrets/" + encoded + secretFileExt)
}

func (s *S3Store) namespacedKey(suffix string) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + "/" + s.namespace + "/" + suffix
	}
	return s.namespace + "/" + suffix
}

func (s *S3Store) loadOrCreateSalt(ctx context.Context) ([]byte, error) {
	saltKey := s.namespacedKey("derivation.salt")

	salt, found, err := s.getObject(ctx, saltKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read derivation salt: %w", err)
	}
	if found {
		if len(salt) < misc.SaltSize {
			return nil, fmt.Errorf("derivation salt is corrupt (got %d bytes)", len(salt))
		}
		return salt, nil
	}

	salt = make([]byte, misc.SaltSize)
	if _, err = rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate derivation salt: %w", err)
	}
	if err = s.putObject(ctx, saltKey, salt); err != nil {
		return nil, fmt.Errorf("failed to persist derivation salt: %w", err)
	}
	return salt, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || misc.IsNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put stores the value under key, encrypted client-side.
func (s *S3Store) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	sealed, err := s.env.seal(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = s.putObject(ctx, s.objectKey(key), sealed); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

// Get retrieves and decrypts the value stored under key.
func (s *S3Store) Get(key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("key cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	sealed, found, err := s.getObject(ctx, s.objectKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read secret: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	value, err := s.env.open(sealed)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return value, true, nil
}

// Delete removes the value stored under key. Missing keys are ignored.
func (s *S3Store) Delete(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	err := s.client.RemoveObject(ctx, s.bucketName, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" || misc.IsNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// List returns the decoded keys of all stored secrets in the namespace.
func (s *S3Store) List() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	prefix := s.namespacedKey("secrets/")
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, secretFileExt) {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, secretFileExt))
		if err != nil {
			continue
		}
		keys = append(keys, string(decoded))
	}
	return keys, nil
}

// Close is a no-op; the MinIO client holds no resources to release.
func (s *S3Store) Close() error {
	return nil
}
