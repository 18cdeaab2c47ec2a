package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func createTestFileLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Options: map[string]interface{}{"file_path": logPath},
	})
	if err != nil {
		t.Fatalf("Failed to create file logger: %v", err)
	}
	t.Cleanup(func() {
		logger.Close()
	})
	return logger, logPath
}

func TestFileLoggerWritesJSONL(t *testing.T) {
	logger, logPath := createTestFileLogger(t)

	err := logger.Log(ActionSecretStore, true, map[string]interface{}{
		"secret_key": "api-key-weather",
	})
	if err != nil {
		t.Fatalf("Failed to log event: %v", err)
	}
	err = logger.Log(ActionTemplateVerify, false, map[string]interface{}{
		"path":  "templates/invoice.md",
		"error": "checksum mismatch",
	})
	if err != nil {
		t.Fatalf("Failed to log event: %v", err)
	}

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		if err = json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("Log line is not valid JSON: %v", err)
		}
		events = append(events, event)
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Action != ActionSecretStore || !events[0].Success {
		t.Errorf("Unexpected first event: %+v", events[0])
	}
	if events[0].SecretKey != "api-key-weather" {
		t.Errorf("Expected secret_key to be lifted into the typed field, got %q", events[0].SecretKey)
	}
	if events[1].Path != "templates/invoice.md" || events[1].Error != "checksum mismatch" {
		t.Errorf("Unexpected second event: %+v", events[1])
	}
	if events[0].ID == "" || events[0].ID == events[1].ID {
		t.Error("Expected distinct non-empty event IDs")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestFileLoggerQuery(t *testing.T) {
	logger, _ := createTestFileLogger(t)

	actions := []struct {
		action  string
		success bool
	}{
		{ActionSecretStore, true},
		{ActionSecretStore, false},
		{ActionTemplateVerify, true},
		{ActionTemplateSign, false},
	}
	for _, a := range actions {
		if err := logger.Log(a.action, a.success, nil); err != nil {
			t.Fatalf("Failed to log event: %v", err)
		}
	}

	// All events.
	result, err := logger.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(result.Events) != 4 {
		t.Errorf("Expected 4 events, got %d", len(result.Events))
	}

	// By action.
	result, err = logger.Query(QueryOptions{Action: ActionSecretStore})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(result.Events) != 2 {
		t.Errorf("Expected 2 store events, got %d", len(result.Events))
	}

	// Failures only.
	failed := false
	result, err = logger.Query(QueryOptions{Success: &failed})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(result.Events) != 2 {
		t.Errorf("Expected 2 failed events, got %d", len(result.Events))
	}
	for _, event := range result.Events {
		if event.Success {
			t.Errorf("Expected only failures, got %+v", event)
		}
	}

	// Limit clips and reports more.
	result, err = logger.Query(QueryOptions{Limit: 3})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(result.Events) != 3 {
		t.Errorf("Expected 3 events under limit, got %d", len(result.Events))
	}
	if !result.HasMore {
		t.Error("Expected HasMore to be set when the limit clips results")
	}
	if result.TotalCount != 4 {
		t.Errorf("Expected total count 4, got %d", result.TotalCount)
	}
}

func TestFileLoggerQuerySurvivesRestart(t *testing.T) {
	logger, logPath := createTestFileLogger(t)

	if err := logger.Log(ActionTrustAdd, true, map[string]interface{}{"source": "vendor"}); err != nil {
		t.Fatalf("Failed to log event: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	reopened, err := NewFileLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Options: map[string]interface{}{"file_path": logPath},
	})
	if err != nil {
		t.Fatalf("Failed to reopen logger: %v", err)
	}
	defer reopened.Close()

	// The cache is empty after reopen; the query falls back to the file.
	result, err := reopened.Query(QueryOptions{Action: ActionTrustAdd})
	if err != nil {
		t.Fatalf("Failed to query after reopen: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("Expected 1 event after reopen, got %d", len(result.Events))
	}
	if result.Events[0].Source != "vendor" {
		t.Errorf("Expected source %q, got %q", "vendor", result.Events[0].Source)
	}
}

func TestFileLoggerRequiresFilePath(t *testing.T) {
	_, err := NewFileLogger(&Config{Enabled: true, Type: FileAuditType})
	if err == nil {
		t.Fatal("Expected an error without file_path")
	}
}

func TestNewLoggerFactory(t *testing.T) {
	// Disabled or nil config yields the no-op logger.
	logger, err := NewLogger(nil)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if _, ok := logger.(*NoOpLogger); !ok {
		t.Errorf("Expected a NoOpLogger for nil config, got %T", logger)
	}

	logger, err = NewLogger(&Config{Enabled: false, Type: FileAuditType})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	if _, ok := logger.(*NoOpLogger); !ok {
		t.Errorf("Expected a NoOpLogger for disabled config, got %T", logger)
	}

	if _, err = NewLogger(&Config{Enabled: true, Type: "kafka"}); err == nil {
		t.Error("Expected an error for an unknown provider")
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := &NoOpLogger{}

	if err := logger.Log(ActionSecretGet, true, nil); err != nil {
		t.Errorf("No-op log should not fail: %v", err)
	}
	result, err := logger.Query(QueryOptions{})
	if err != nil {
		t.Errorf("No-op query should not fail: %v", err)
	}
	if len(result.Events) != 0 {
		t.Errorf("No-op query should return no events, got %d", len(result.Events))
	}
	if err = logger.Close(); err != nil {
		t.Errorf("No-op close should not fail: %v", err)
	}
}
