package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitMigrationDeclaresWorkflowConstraints(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"CREATE UNIQUE INDEX invitations_one_pending_key",
		"ON invitations (sharer_id, lower(invitee_email), role)",
		"CREATE UNIQUE INDEX follow_requests_one_pending_key",
		"ON follow_requests (requestor_id, sharer_id)",
		"UNIQUE (listener_id, sharer_id)",
		"UNIQUE (executor_id, sharer_id)",
		"token TEXT NOT NULL UNIQUE",
		"CREATE UNIQUE INDEX profiles_email_lower_key ON profiles (lower(email))",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Count(sqlText, "WHERE status = 'PENDING';") < 2 {
		t.Fatalf("expected both pending uniqueness indexes to be partial on PENDING")
	}
}
