package aegis

import (
	"testing"

	"southwinds.dev/aegis/audit"
)

func TestExportImportRoundTrip(t *testing.T) {
	source := createTestVault(t)

	if err := source.StoreSecureData("db-password", "s3cret"); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if err := source.StoreAPIKey("weather", "wk-1", 0, map[string]string{"plan": "pro"}); err != nil {
		t.Fatalf("Failed to store API key: %v", err)
	}
	if err := source.StoreCredentials("mail", "alice", "hunter2"); err != nil {
		t.Fatalf("Failed to store credentials: %v", err)
	}

	dump, err := source.ExportSecrets("travel-pass")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	// The dump restores into a vault backed by a different store.
	target := createTestVault(t)
	if err = target.ImportSecrets(dump, "travel-pass"); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}

	value, found, err := target.GetSecureData("db-password")
	if err != nil || !found {
		t.Fatalf("Imported secret missing: found=%t err=%v", found, err)
	}
	if value != "s3cret" {
		t.Errorf("Expected value %q, got %q", "s3cret", value)
	}

	key, found, err := target.GetAPIKey("weather")
	if err != nil || !found {
		t.Fatalf("Imported API key missing: found=%t err=%v", found, err)
	}
	if key != "wk-1" {
		t.Errorf("Expected API key %q, got %q", "wk-1", key)
	}

	metadata, found, err := target.GetAPIKeyMetadata("weather")
	if err != nil || !found {
		t.Fatalf("Imported API key metadata missing: found=%t err=%v", found, err)
	}
	if metadata["plan"] != "pro" {
		t.Errorf("Expected metadata to survive the trip, got %v", metadata)
	}

	password, found, err := target.GetCredentials("mail", "alice")
	if err != nil || !found {
		t.Fatalf("Imported credentials missing: found=%t err=%v", found, err)
	}
	if password != "hunter2" {
		t.Errorf("Expected password %q, got %q", "hunter2", password)
	}
}

func TestImportWithWrongPassphrase(t *testing.T) {
	source := createTestVault(t)
	if err := source.StoreSecureData("key", "value"); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	dump, err := source.ExportSecrets("right")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	target := createTestVault(t)
	if err = target.ImportSecrets(dump, "wrong"); err == nil {
		t.Fatal("Expected import with wrong passphrase to fail")
	}

	// Nothing was written.
	keys, err := target.ListKeys()
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty store after failed import, got %v", keys)
	}
}

func TestExportRequiresPassphrase(t *testing.T) {
	vault := createTestVault(t)

	if _, err := vault.ExportSecrets(""); err == nil {
		t.Error("Expected an error for empty export passphrase")
	}
	if err := vault.ImportSecrets([]byte("x"), ""); err == nil {
		t.Error("Expected an error for empty import passphrase")
	}
}

func TestImportOverwritesExistingEntries(t *testing.T) {
	source := createTestVault(t)
	if err := source.StoreSecureData("shared", "from-export"); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	dump, err := source.ExportSecrets("pass")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}

	target := createTestVault(t)
	if err = target.StoreSecureData("shared", "pre-existing"); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}
	if err = target.ImportSecrets(dump, "pass"); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}

	value, _, err := target.GetSecureData("shared")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if value != "from-export" {
		t.Errorf("Expected imported value to win, got %q", value)
	}
}

func TestExportImportAudited(t *testing.T) {
	vault, recorder := createAuditedVault(t)
	if err := vault.StoreSecureData("key", "value"); err != nil {
		t.Fatalf("Failed to store: %v", err)
	}

	dump, err := vault.ExportSecrets("pass")
	if err != nil {
		t.Fatalf("Failed to export: %v", err)
	}
	if err = vault.ImportSecrets(dump, "pass"); err != nil {
		t.Fatalf("Failed to import: %v", err)
	}

	exports := recorder.byAction(audit.ActionSecretsExport)
	if len(exports) != 1 || !exports[0].Success {
		t.Errorf("Expected one successful export event, got %+v", exports)
	}
	imports := recorder.byAction(audit.ActionSecretsImport)
	if len(imports) != 1 || !imports[0].Success {
		t.Errorf("Expected one successful import event, got %+v", imports)
	}
}
