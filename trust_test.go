package aegis

import (
	"os"
	"path/filepath"
	"testing"

	"southwinds.dev/aegis/audit"
)

func TestAddTrustedSource(t *testing.T) {
	checker := createTestChecker(t, "")

	if err := checker.AddTrustedSource("partner", "keys/partner.pem"); err != nil {
		t.Fatalf("Failed to add trusted source: %v", err)
	}

	sources := checker.TrustedSources()
	if len(sources) != 1 {
		t.Fatalf("Expected 1 source, got %d", len(sources))
	}
	if sources[0].Name != "partner" || sources[0].PublicKeyPath != "keys/partner.pem" {
		t.Errorf("Unexpected source entry: %+v", sources[0])
	}
}

func TestAddTrustedSourceArgumentErrors(t *testing.T) {
	checker := createTestChecker(t, "")

	if err := checker.AddTrustedSource("", "keys/a.pem"); err == nil {
		t.Error("Expected an error for empty name")
	}
	if err := checker.AddTrustedSource("name", ""); err == nil {
		t.Error("Expected an error for empty key path")
	}
	// The key path goes through path validation.
	if err := checker.AddTrustedSource("name", "../escape.pem"); err == nil {
		t.Error("Expected an error for a traversal key path")
	}
	if err := checker.AddTrustedSource("name", "key.exe"); err == nil {
		t.Error("Expected an error for a disallowed key extension")
	}
}

func TestTrustedSourcesSortedAndOverwrite(t *testing.T) {
	checker := createTestChecker(t, "")

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := checker.AddTrustedSource(name, "keys/"+name+".pem"); err != nil {
			t.Fatalf("Failed to add source %s: %v", name, err)
		}
	}

	sources := checker.TrustedSources()
	if len(sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(sources))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if sources[i].Name != want {
			t.Errorf("Expected source %d to be %s, got %s", i, want, sources[i].Name)
		}
	}

	// Re-registering a name replaces its key path.
	if err := checker.AddTrustedSource("alpha", "keys/alpha-v2.pem"); err != nil {
		t.Fatalf("Failed to overwrite source: %v", err)
	}
	sources = checker.TrustedSources()
	if len(sources) != 3 {
		t.Fatalf("Expected overwrite to keep 3 sources, got %d", len(sources))
	}
	if sources[0].PublicKeyPath != "keys/alpha-v2.pem" {
		t.Errorf("Expected overwritten key path, got %s", sources[0].PublicKeyPath)
	}
}

func TestResourceDirIsImplicitlyTrusted(t *testing.T) {
	resourceDir := t.TempDir()
	checker := createTestChecker(t, resourceDir)
	path := writeTestTemplate(t, resourceDir, "bundled.md", "first party")

	// No signature, no registered source; location alone grants trust.
	if !checker.IsFromTrustedSource(path, "") {
		t.Error("Expected path under the resource dir to be trusted")
	}
	if !checker.IsFromTrustedSource(path, "anything") {
		t.Error("Expected resource-dir trust to ignore the claimed source")
	}

	outside := writeTestTemplate(t, t.TempDir(), "external.md", "third party")
	if checker.IsFromTrustedSource(outside, "") {
		t.Error("Expected path outside the resource dir to be untrusted")
	}
}

func TestIsFromTrustedSourceRegistered(t *testing.T) {
	dir := t.TempDir()
	checker := createTestChecker(t, "")
	privatePath, publicPath := generateTestKeyPair(t, dir)
	path := writeTestTemplate(t, dir, "vendor.md", "vendor template")

	if err := checker.AddTrustedSource("vendor", publicPath); err != nil {
		t.Fatalf("Failed to add trusted source: %v", err)
	}

	// Registered but unsigned: not trusted.
	if checker.IsFromTrustedSource(path, "vendor") {
		t.Error("Expected unsigned template to be untrusted")
	}

	if _, err := checker.SignTemplate(path, privatePath); err != nil {
		t.Fatalf("Failed to sign template: %v", err)
	}

	if !checker.IsFromTrustedSource(path, "vendor") {
		t.Error("Expected signed template from a registered source to be trusted")
	}

	// A source nobody registered is never trusted, signature or not.
	if checker.IsFromTrustedSource(path, "stranger") {
		t.Error("Expected unregistered source to be untrusted")
	}
}

func TestComposeVerdict(t *testing.T) {
	// The composition rule over every combination: checksum must hold,
	// plus trust or a valid signature.
	cases := []struct {
		checksum, trusted, signature bool
		want                         bool
	}{
		{false, false, false, false},
		{false, false, true, false},
		{false, true, false, false},
		{false, true, true, false},
		{true, false, false, false},
		{true, false, true, true},
		{true, true, false, true},
		{true, true, true, true},
	}

	for _, c := range cases {
		got := composeVerdict(c.checksum, c.trusted, c.signature)
		if got != c.want {
			t.Errorf("composeVerdict(%t, %t, %t) = %t, want %t",
				c.checksum, c.trusted, c.signature, got, c.want)
		}
	}
}

func TestVerifyTemplateIntegrityMissingFile(t *testing.T) {
	checker := createTestChecker(t, "")

	result := checker.VerifyTemplateIntegrity(filepath.Join(t.TempDir(), "ghost.md"), "")
	if result.Valid || result.ChecksumValid || result.SignatureValid || result.FromTrustedSource {
		t.Errorf("Expected all-false result for a missing template, got %+v", result)
	}
	if result.Source != "" {
		t.Errorf("Expected no source for a missing template, got %q", result.Source)
	}
}

func TestVerifyTemplateIntegrityBundledTemplate(t *testing.T) {
	resourceDir := t.TempDir()
	checker := createTestChecker(t, resourceDir)
	path := writeTestTemplate(t, resourceDir, "welcome.md", "bundled template")

	if _, err := checker.GenerateChecksumFile(path); err != nil {
		t.Fatalf("Failed to generate checksum file: %v", err)
	}

	result := checker.VerifyTemplateIntegrity(path, "")
	if !result.Valid {
		t.Fatalf("Expected bundled template to verify, got %+v", result)
	}
	if !result.ChecksumValid || !result.FromTrustedSource {
		t.Errorf("Unexpected component verdicts: %+v", result)
	}
	if result.Source != BuiltinSourceName {
		t.Errorf("Expected source %q, got %q", BuiltinSourceName, result.Source)
	}
}

func TestVerifyTemplateIntegrityRegisteredSource(t *testing.T) {
	dir := t.TempDir()
	checker := createTestChecker(t, "")
	privatePath, publicPath := generateTestKeyPair(t, dir)
	path := writeTestTemplate(t, dir, "external.md", "external template")

	if err := checker.AddTrustedSource("default", publicPath); err != nil {
		t.Fatalf("Failed to add trusted source: %v", err)
	}
	if _, err := checker.SignTemplate(path, privatePath); err != nil {
		t.Fatalf("Failed to sign template: %v", err)
	}
	if _, err := checker.GenerateChecksumFile(path); err != nil {
		t.Fatalf("Failed to generate checksum file: %v", err)
	}

	result := checker.VerifyTemplateIntegrity(path, "default")
	if !result.Valid {
		t.Fatalf("Expected signed template from registered source to verify, got %+v", result)
	}
	if result.Source != "default" {
		t.Errorf("Expected source %q, got %q", "default", result.Source)
	}
}

func TestVerifyTemplateIntegrityChecksumGatesEverything(t *testing.T) {
	resourceDir := t.TempDir()
	checker := createTestChecker(t, resourceDir)
	path := writeTestTemplate(t, resourceDir, "stale.md", "v1")

	if _, err := checker.GenerateChecksumFile(path); err != nil {
		t.Fatalf("Failed to generate checksum file: %v", err)
	}
	if err := os.WriteFile(path, []byte("v2"), 0600); err != nil {
		t.Fatalf("Failed to modify template: %v", err)
	}

	// Trusted location, stale checksum: the verdict is invalid.
	result := checker.VerifyTemplateIntegrity(path, "")
	if result.Valid {
		t.Errorf("Expected stale checksum to invalidate a trusted template, got %+v", result)
	}
	if !result.FromTrustedSource {
		t.Error("Expected template to still be recognized as trusted")
	}
	if result.ChecksumValid {
		t.Error("Expected checksum verdict to be false")
	}
}

func TestVerifyTemplateIntegrityUntrustedUnsigned(t *testing.T) {
	dir := t.TempDir()
	checker := createTestChecker(t, "")
	path := writeTestTemplate(t, dir, "anon.md", "no provenance")

	if _, err := checker.GenerateChecksumFile(path); err != nil {
		t.Fatalf("Failed to generate checksum file: %v", err)
	}

	// Checksum holds but there is neither trust nor a signature.
	result := checker.VerifyTemplateIntegrity(path, "")
	if result.Valid {
		t.Errorf("Expected template without provenance to be invalid, got %+v", result)
	}
	if !result.ChecksumValid {
		t.Error("Expected checksum verdict to be true")
	}
	if result.Source != "" {
		t.Errorf("Expected no source label for an untrusted template, got %q", result.Source)
	}
}

func TestVerifyTemplateIntegritySourceOmittedWhenUntrusted(t *testing.T) {
	dir := t.TempDir()
	checker := createTestChecker(t, "")
	_, publicPath := generateTestKeyPair(t, dir)
	path := writeTestTemplate(t, dir, "claimed.md", "claims a source")

	if err := checker.AddTrustedSource("vendor", publicPath); err != nil {
		t.Fatalf("Failed to add trusted source: %v", err)
	}
	if _, err := checker.GenerateChecksumFile(path); err != nil {
		t.Fatalf("Failed to generate checksum file: %v", err)
	}

	// Claiming a registered source without carrying its signature must
	// not attach that source's label to the result.
	result := checker.VerifyTemplateIntegrity(path, "vendor")
	if result.Valid {
		t.Errorf("Expected unsigned claim to fail, got %+v", result)
	}
	if result.FromTrustedSource {
		t.Error("Expected trust verdict to be false")
	}
	if result.Source != "" {
		t.Errorf("Expected no source label, got %q", result.Source)
	}
}

func TestVerifyTemplateIntegritySignatureCheckedOnce(t *testing.T) {
	dir := t.TempDir()
	checker, recorder := createAuditedChecker(t, "")
	_, publicPath := generateTestKeyPair(t, dir)
	path := writeTestTemplate(t, dir, "external.md", "content")

	if _, err := checker.GenerateChecksumFile(path); err != nil {
		t.Fatalf("Failed to generate checksum file: %v", err)
	}
	if err := checker.AddTrustedSource("partner", publicPath); err != nil {
		t.Fatalf("Failed to add trusted source: %v", err)
	}

	// Registered source, no signature sidecar: the lookup fails and the
	// orchestrator reuses that verdict instead of re-reading the key
	// and template.
	result := checker.VerifyTemplateIntegrity(path, "partner")
	if result.FromTrustedSource || result.SignatureValid || result.Valid {
		t.Errorf("Expected unsigned template from registered source to fail trust, got %+v", result)
	}

	missing := 0
	for _, event := range recorder.byAction(audit.ActionTemplateVerify) {
		if event.Error == "signature file not available" {
			missing++
		}
	}
	if missing != 1 {
		t.Errorf("Expected exactly one signature lookup, observed %d", missing)
	}
}
