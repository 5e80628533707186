package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"taskloom/api/internal/util"
)

// openTestStore connects to the test database, applies migrations and returns
// a store. Integration tests skip in short mode and fail fast when the
// database is unreachable.
func openTestStore(t *testing.T) (*PostgresStore, *sql.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, testDatabaseURL())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), db
}

// seedTask inserts a user, workspace, project and task chain and returns the
// user and task ids. The user row cascades to everything else on delete.
func seedTask(t *testing.T, db *sql.DB) (userID, taskID string) {
	t.Helper()
	ctx := context.Background()

	userID = util.NewID("usr")
	workspaceID := util.NewID("wsp")
	projectID := util.NewID("prj")
	taskID = util.NewID("tsk")

	if _, err := db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, email_verified)
		VALUES ($1, 'Avery', $1 || '@example.com', 'x', TRUE)
	`, userID); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, context_type, context_id, owner_id, created_by)
		VALUES ($1, 'Test Space', 'personal', $2, $2, $2)
	`, workspaceID, userID); err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projects (id, workspace_id, name, owner_id, owner_name)
		VALUES ($1, $2, 'Test Project', $3, 'Avery')
	`, projectID, workspaceID, userID); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, created_by, created_by_name)
		VALUES ($1, $2, 'Seed task', $3, 'Avery')
	`, taskID, projectID, userID); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM tasks WHERE id=$1`, taskID)
		_, _ = db.ExecContext(context.Background(), `DELETE FROM projects WHERE id=$1`, projectID)
		_, _ = db.ExecContext(context.Background(), `DELETE FROM workspaces WHERE id=$1`, workspaceID)
		_, _ = db.ExecContext(context.Background(), `DELETE FROM users WHERE id=$1`, userID)
	})
	return userID, taskID
}

// TestInsertTaskActivityAssignsDistinctIDs verifies that consecutive inserts
// land as separate rows with database-assigned ids, including an entry
// carrying assignee metadata.
func TestInsertTaskActivityAssignsDistinctIDs(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()
	userID, taskID := seedTask(t, db)

	entries := []TaskActivity{
		{TaskID: taskID, PerformedBy: userID, PerformedByName: "Avery", Action: "created", Details: "created task Seed task"},
		{TaskID: taskID, PerformedBy: userID, PerformedByName: "Avery", Action: "status_changed", Field: "status", OldValue: "todo", NewValue: "in_progress", Details: `status changed from "todo" to "in_progress"`},
		{TaskID: taskID, PerformedBy: userID, PerformedByName: "Avery", Action: "assigned", Field: "assignees", NewValue: userID, Details: "assigned Avery",
			Metadata: map[string]any{"userId": userID, "userName": "Avery"}},
	}
	for i, entry := range entries {
		if err := store.InsertTaskActivity(ctx, entry); err != nil {
			t.Fatalf("insert activity %d: %v", i, err)
		}
	}

	items, err := store.ListTaskActivities(ctx, taskID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(items) != len(entries) {
		t.Fatalf("expected %d activities, got %d", len(entries), len(items))
	}

	seenIDs := make(map[int64]bool)
	for _, item := range items {
		if item.ID == 0 {
			t.Fatalf("activity %q has no assigned id", item.Action)
		}
		if seenIDs[item.ID] {
			t.Fatalf("duplicate activity id %d", item.ID)
		}
		seenIDs[item.ID] = true
	}

	for i, item := range items {
		if item.Action != entries[i].Action {
			t.Fatalf("activity %d: expected action %s, got %s", i, entries[i].Action, item.Action)
		}
	}
}

// TestTaskActivityMetadataRoundTrip verifies the jsonb metadata column
// survives insert and list, and stays empty when never set.
func TestTaskActivityMetadataRoundTrip(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()
	userID, taskID := seedTask(t, db)

	withMeta := TaskActivity{
		TaskID: taskID, PerformedBy: userID, PerformedByName: "Avery",
		Action: "unassigned", Field: "assignees", OldValue: userID, Details: "unassigned Avery",
		Metadata: map[string]any{"userId": userID, "userName": "Avery"},
	}
	withoutMeta := TaskActivity{
		TaskID: taskID, PerformedBy: userID, PerformedByName: "Avery",
		Action: "title_changed", Field: "title", OldValue: "a", NewValue: "b", Details: `title changed from "a" to "b"`,
	}
	if err := store.InsertTaskActivity(ctx, withMeta); err != nil {
		t.Fatalf("insert with metadata: %v", err)
	}
	if err := store.InsertTaskActivity(ctx, withoutMeta); err != nil {
		t.Fatalf("insert without metadata: %v", err)
	}

	items, err := store.ListTaskActivities(ctx, taskID)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(items))
	}

	if items[0].Metadata["userId"] != userID || items[0].Metadata["userName"] != "Avery" {
		t.Fatalf("unexpected metadata round trip: %v", items[0].Metadata)
	}
	if items[1].Metadata != nil {
		t.Fatalf("expected nil metadata for plain activity, got %v", items[1].Metadata)
	}
}

// testDatabaseURL picks the integration database from TEST_DATABASE_URL or
// the standard Postgres environment variables.
func testDatabaseURL() string {
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "taskloom")
	pass := envOr("POSTGRES_PASSWORD", "taskloom")
	dbname := envOr("POSTGRES_DB", "taskloom_test")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
