package aegis

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"southwinds.dev/aegis/audit"
)

const (
	// DefaultChecksumAlgorithm is used when callers do not name one.
	DefaultChecksumAlgorithm = "sha256"

	// ChecksumFileExt is the suffix of the checksum sidecar file.
	ChecksumFileExt = ".checksum"

	// SignatureFileExt is the suffix of the signature sidecar file.
	SignatureFileExt = ".sig"

	timestampField = "TIMESTAMP"
)

// checksumFileAlgorithms are written to sidecar files, fast algorithm
// first for quick comparison, strong second for integrity assurance.
var checksumFileAlgorithms = []string{"md5", "sha256"}

// Checker verifies template files before they are used to generate
// documents: checksums against a sidecar file, digital signatures, and
// membership of a trusted-source registry. It refuses to operate on
// paths that fail validation.
//
// The registry is populated during startup and on explicit
// AddTrustedSource calls; mutating it concurrently with verification
// traffic requires external synchronization.
type Checker struct {
	resourceDir    string
	templatePolicy PathPolicy
	keyPolicy      PathPolicy
	sources        map[string]TrustedSource
	auditLogger    audit.Logger
	ownsAudit      bool
}

// NewChecker creates a Checker from options.
func NewChecker(options CheckerOptions) (*Checker, error) {
	templatePolicy := DefaultTemplatePolicy()
	if options.TemplatePolicy != nil {
		templatePolicy = *options.TemplatePolicy
	}
	keyPolicy := DefaultKeyPolicy()
	if options.KeyPolicy != nil {
		keyPolicy = *options.KeyPolicy
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

	resourceDir := options.ResourceDir
	if resourceDir != "" {
		resourceDir = filepath.Clean(resourceDir)
	}

	return &Checker{
		resourceDir:    resourceDir,
		templatePolicy: templatePolicy,
		keyPolicy:      keyPolicy,
		sources:        make(map[string]TrustedSource),
		auditLogger:    auditLogger,
		ownsAudit:      ownsAudit,
	}, nil
}

// Close releases the audit logger if the checker created it itself.
func (c *Checker) Close() error {
	if c.ownsAudit {
		return c.auditLogger.Close()
	}
	return nil
}

// CalculateChecksum reads the file at path and returns its hex digest
// under the named algorithm (md5, sha1, sha256 or sha512; empty means
// sha256). The path is validated first; an unsafe path is an error,
// not a digest of whatever it points at.
func (c *Checker) CalculateChecksum(path, algorithm string) (string, error) {
	if result := ValidatePath(path, &c.templatePolicy); !result.Valid {
		return "", fmt.Errorf("invalid or unsafe template path provided: %s", result.Message)
	}

	digest, err := digestFor(algorithm)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	digest.Write(data)
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// VerifyChecksum recomputes the file's digest and compares it to
// expected. Any failure during recomputation counts as verification
// failure: an inability to verify is equivalent to "not verified".
func (c *Checker) VerifyChecksum(path, expected, algorithm string) bool {
	actual, err := c.CalculateChecksum(path, algorithm)
	if err != nil {
		return false
	}
	return strings.EqualFold(actual, expected)
}

// GenerateChecksumFile computes digests of the file under the sidecar
// algorithms and writes them to "<path>.checksum", one ALGO=hexdigest
// line per algorithm followed by a TIMESTAMP line. Returns the sidecar
// path.
func (c *Checker) GenerateChecksumFile(path string) (string, error) {
	if result := ValidatePath(path, &c.templatePolicy); !result.Valid {
		return "", fmt.Errorf("invalid or unsafe template path provided: %s", result.Message)
	}

	var lines []string
	for _, algorithm := range checksumFileAlgorithms {
		digest, err := c.CalculateChecksum(path, algorithm)
		if err != nil {
			c.auditLog(audit.ActionChecksumGenerate, false, map[string]interface{}{"path": path, "error": err.Error()})
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s=%s", strings.ToUpper(algorithm), digest))
	}
	lines = append(lines, fmt.Sprintf("%s=%s", timestampField, time.Now().UTC().Format(time.RFC3339)))

	sidecarPath := path + ChecksumFileExt
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(sidecarPath, []byte(content), 0600); err != nil {
		c.auditLog(audit.ActionChecksumGenerate, false, map[string]interface{}{"path": path, "error": err.Error()})
		return "", fmt.Errorf("failed to write checksum file: %w", err)
	}

	c.auditLog(audit.ActionChecksumGenerate, true, map[string]interface{}{"path": path})
	return sidecarPath, nil
}

// VerifyTemplateWithChecksumFile checks the file against its sidecar.
// Every algorithm line in the sidecar must match a freshly computed
// digest; a single mismatch, an unreadable or absent sidecar, or a
// sidecar without any algorithm lines all yield false.
func (c *Checker) VerifyTemplateWithChecksumFile(path string) bool {
	sidecarPath := path + ChecksumFileExt

	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		c.auditLog(audit.ActionTemplateVerify, false, map[string]interface{}{"path": path, "error": "checksum file not available"})
		return false
	}

	entries, err := parseChecksumFile(string(data))
	if err != nil {
		c.auditLog(audit.ActionTemplateVerify, false, map[string]interface{}{"path": path, "error": "malformed checksum file"})
		return false
	}
	if len(entries) == 0 {
		return false
	}

	for algorithm, expected := range entries {
		if !c.VerifyChecksum(path, expected, algorithm) {
			return false
		}
	}
	return true
}

// parseChecksumFile extracts algorithm→digest entries from sidecar
// content, skipping the TIMESTAMP line and blanks.
func parseChecksumFile(content string) (map[string]string, error) {
	entries := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %q is not KEY=value", line)
		}
		if strings.EqualFold(name, timestampField) {
			continue
		}
		entries[strings.ToLower(name)] = value
	}
	return entries, nil
}

// digestFor maps an algorithm name to a fresh hash instance.
func digestFor(algorithm string) (hash.Hash, error) {
	if algorithm == "" {
		algorithm = DefaultChecksumAlgorithm
	}
	switch strings.ToLower(algorithm) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}
}

// ChecksumAlgorithms returns the supported algorithm names.
func ChecksumAlgorithms() []string {
	algorithms := []string{"md5", "sha1", "sha256", "sha512"}
	sort.Strings(algorithms)
	return algorithms
}

func (c *Checker) auditLog(action string, success bool, metadata map[string]interface{}) {
	_ = c.auditLogger.Log(action, success, metadata)
}

// errUnsafePath is a convenience for the dual-path operations.
var errUnsafePath = errors.New("invalid or unsafe path provided")
