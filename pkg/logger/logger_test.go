package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	appLog := filepath.Join(dir, "app.log")
	auditLog := filepath.Join(dir, "audit", "audit.log")

	if err := Init(Config{
		Level:       "debug",
		OutputPaths: []string{appLog},
		Audit:       AuditConfig{Enabled: true, Path: auditLog},
	}); err != nil {
		t.Fatalf("init: %v", err)
	}

	Named("parser").Debug("parsed", "intent_id", "abc")
	Audit().Info("transfer forwarded", "to", "0x1")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	raw, err := os.ReadFile(appLog)
	if err != nil {
		t.Fatalf("read app log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &entry); err != nil {
		t.Fatalf("decode app log: %v (%s)", err, raw)
	}
	if entry["component"] != "parser" || entry["intent_id"] != "abc" {
		t.Fatalf("unexpected entry: %v", entry)
	}

	audit, err := os.ReadFile(auditLog)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(audit), `"stream":"audit"`) {
		t.Fatalf("audit stream tag missing: %s", audit)
	}

	t.Cleanup(func() { _ = Init(Config{}) })
}

func TestAuditRequiresPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING").String() != "WARN" {
		t.Fatalf("warning should map to WARN")
	}
	if parseLevel("nonsense").String() != "INFO" {
		t.Fatalf("unknown should map to INFO")
	}
}
