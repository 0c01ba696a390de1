package integration_test

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func loadAuditTypes(t *testing.T, dbPath string) []string {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open audit db: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.Query("SELECT type FROM events ORDER BY id")
	if err != nil {
		t.Fatalf("query audit events: %v", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var types []string
	for rows.Next() {
		var eventType string
		if err := rows.Scan(&eventType); err != nil {
			t.Fatalf("scan audit event: %v", err)
		}
		types = append(types, eventType)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate audit events: %v", err)
	}
	return types
}

func requireAuditEvents(t *testing.T, dbPath string, want []string) {
	t.Helper()
	seen := make(map[string]bool)
	for _, eventType := range loadAuditTypes(t, dbPath) {
		seen[eventType] = true
	}
	for _, eventType := range want {
		if !seen[eventType] {
			t.Fatalf("missing audit event %s in %s", eventType, dbPath)
		}
	}
}

func countAuditEvents(t *testing.T, dbPath, eventType string) int {
	t.Helper()
	n := 0
	for _, got := range loadAuditTypes(t, dbPath) {
		if got == eventType {
			n++
		}
	}
	return n
}
