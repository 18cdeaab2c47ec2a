package aegis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"southwinds.dev/aegis/audit"
)

// TrustedSource is a named trust anchor: templates claiming this
// origin are verified against its public key.
type TrustedSource struct {
	Name          string `json:"name"`
	PublicKeyPath string `json:"public_key_path"`
}

// BuiltinSourceName labels the implicit trust entry for templates
// bundled under the checker's resource directory.
const BuiltinSourceName = "builtin"

// VerificationResult is the outcome of VerifyTemplateIntegrity.
// Valid is true only if the checksum held AND the template either came
// from a trusted source or carried a valid signature. Source is
// populated only when FromTrustedSource is true; callers must not
// display a source label for untrusted templates.
type VerificationResult struct {
	Valid             bool   `json:"valid"`
	ChecksumValid     bool   `json:"checksum_valid"`
	SignatureValid    bool   `json:"signature_valid"`
	FromTrustedSource bool   `json:"from_trusted_source"`
	Source            string `json:"source,omitempty"`
}

// AddTrustedSource registers or overwrites a named trust anchor. The
// public key path must pass validation. Registration is an
// administrative step expected to happen before verification traffic;
// racing it against verification calls requires external
// synchronization.
func (c *Checker) AddTrustedSource(name, publicKeyPath string) error {
	if name == "" || publicKeyPath == "" {
		return errors.New("name and public key path must be provided")
	}
	if result := ValidatePath(publicKeyPath, &c.keyPolicy); !result.Valid {
		return fmt.Errorf("%w: %s", errUnsafePath, result.Message)
	}

	c.sources[name] = TrustedSource{Name: name, PublicKeyPath: publicKeyPath}
	c.auditLog(audit.ActionTrustAdd, true, map[string]interface{}{"source": name, "path": publicKeyPath})
	return nil
}

// TrustedSources returns the registered trust anchors sorted by name.
// The built-in resource-directory entry is implicit and not listed.
func (c *Checker) TrustedSources() []TrustedSource {
	sources := make([]TrustedSource, 0, len(c.sources))
	for _, source := range c.sources {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

// IsFromTrustedSource reports whether the template at path comes from
// a trusted origin. Paths under the checker's resource directory are
// first-party and trusted unconditionally, with no signature lookup.
// Otherwise sourceName is looked up in the registry and, when present,
// the template's signature is verified against that source's key.
func (c *Checker) IsFromTrustedSource(path, sourceName string) bool {
	trusted, _, _ := c.resolveTrust(path, sourceName)
	return trusted
}

// resolveTrust returns the trust verdict, the matched source name and
// the signature verdict established along the way, so callers never
// verify the same signature twice. Bundled templates are trusted
// without a signature lookup and report the signature as valid.
func (c *Checker) resolveTrust(path, sourceName string) (trusted bool, matched string, signatureValid bool) {
	if c.resourceDir != "" && containsLexically(c.resourceDir, filepath.ToSlash(filepath.Clean(path))) {
		return true, BuiltinSourceName, true
	}

	entry, ok := c.sources[sourceName]
	if !ok {
		return false, "", false
	}
	if c.VerifySignature(path, entry.PublicKeyPath) {
		return true, sourceName, true
	}
	return false, "", false
}

// VerifyTemplateIntegrity is the orchestration entry point callers use
// before treating a template as safe to render from. It runs the
// checksum check, the trusted-source lookup and, for registered
// sources that are not implicitly trusted, the signature check, then
// composes the verdict. A failed state is final for this call; after
// remediation (e.g. re-signing) the caller verifies again from
// scratch.
func (c *Checker) VerifyTemplateIntegrity(path, sourceName string) VerificationResult {
	var result VerificationResult

	if _, err := os.Stat(path); err != nil {
		c.auditLog(audit.ActionTemplateVerify, false, map[string]interface{}{"path": path, "error": "template does not exist"})
		return result
	}

	result.ChecksumValid = c.VerifyTemplateWithChecksumFile(path)

	trusted, matched, signatureValid := c.resolveTrust(path, sourceName)
	result.FromTrustedSource = trusted
	result.SignatureValid = signatureValid

	result.Valid = composeVerdict(result.ChecksumValid, result.FromTrustedSource, result.SignatureValid)
	if trusted {
		result.Source = matched
	}

	c.auditLog(audit.ActionTemplateVerify, result.Valid, map[string]interface{}{
		"path":            path,
		"source":          result.Source,
		"checksum_valid":  result.ChecksumValid,
		"signature_valid": result.SignatureValid,
		"trusted":         result.FromTrustedSource,
	})

	return result
}

// composeVerdict is the trust composition rule: a template is valid
// only if its checksum held and it is either from a trusted source or
// carries a valid signature.
func composeVerdict(checksumValid, fromTrustedSource, signatureValid bool) bool {
	return checksumValid && (fromTrustedSource || signatureValid)
}
