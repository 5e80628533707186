package app

import (
	"context"
	"testing"
	"time"

	"taskloom/api/internal/store"
)

func TestDiffTaskEmitsTrackedFieldsInOrder(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := store.Task{
		Title:       "Old title",
		Description: "Old description",
		Status:      "todo",
		Priority:    "low",
	}
	after := store.Task{
		Title:       "New title",
		Description: "New description",
		Status:      "in_progress",
		Priority:    "high",
		DueDate:     &due,
	}

	changes := diffTask(before, after)
	if len(changes) != 5 {
		t.Fatalf("expected 5 changes, got %d: %+v", len(changes), changes)
	}

	wantActions := []string{"title_changed", "description_changed", "status_changed", "priority_changed", "due_date_changed"}
	for i, action := range wantActions {
		if changes[i].Action != action {
			t.Fatalf("change %d: expected action %s, got %s", i, action, changes[i].Action)
		}
	}

	if changes[0].OldValue != "Old title" || changes[0].NewValue != "New title" {
		t.Fatalf("title change values wrong: %+v", changes[0])
	}
	if changes[4].OldValue != "none" || changes[4].NewValue != "2026-03-01" {
		t.Fatalf("due date change values wrong: %+v", changes[4])
	}
	if changes[4].Details != "due date changed from none to 2026-03-01" {
		t.Fatalf("due date details wrong: %q", changes[4].Details)
	}
}

func TestDiffTaskOneChangePerChangedField(t *testing.T) {
	base := store.Task{Title: "T", Description: "D", Status: "todo", Priority: "low"}

	cases := []struct {
		name   string
		mutate func(*store.Task)
		want   int
	}{
		{"nothing", func(*store.Task) {}, 0},
		{"title", func(task *store.Task) { task.Title = "T2" }, 1},
		{"status and priority", func(task *store.Task) {
			task.Status = "done"
			task.Priority = "urgent"
		}, 2},
		{"all scalars", func(task *store.Task) {
			task.Title = "T2"
			task.Description = "D2"
			task.Status = "done"
			task.Priority = "urgent"
		}, 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			after := base
			tc.mutate(&after)
			changes := diffTask(base, after)
			if len(changes) != tc.want {
				t.Fatalf("expected %d changes, got %d: %+v", tc.want, len(changes), changes)
			}
		})
	}
}

func TestDiffTaskAssigneeChangesArePerUser(t *testing.T) {
	before := store.Task{
		Title:    "T",
		Status:   "todo",
		Priority: "low",
		Assignees: []store.UserRef{
			{ID: "user-a", Name: "Alice"},
			{ID: "user-b", Name: "Bob"},
		},
	}
	after := before
	after.Assignees = []store.UserRef{
		{ID: "user-b", Name: "Bob"},
		{ID: "user-c", Name: "Carol"},
	}

	changes := diffTask(before, after)
	if len(changes) != 2 {
		t.Fatalf("expected one assigned and one unassigned change, got %d: %+v", len(changes), changes)
	}

	if changes[0].Action != "assigned" || changes[0].UserID != "user-c" {
		t.Fatalf("expected assigned user-c first, got %+v", changes[0])
	}
	if changes[0].Details != "assigned Carol" {
		t.Fatalf("assigned details wrong: %q", changes[0].Details)
	}
	if changes[1].Action != "unassigned" || changes[1].UserID != "user-a" {
		t.Fatalf("expected unassigned user-a second, got %+v", changes[1])
	}
	if changes[1].Details != "unassigned Alice" {
		t.Fatalf("unassigned details wrong: %q", changes[1].Details)
	}
}

func TestDiffTaskIgnoresAssigneeOrder(t *testing.T) {
	before := store.Task{
		Assignees: []store.UserRef{{ID: "user-a"}, {ID: "user-b"}},
	}
	after := store.Task{
		Assignees: []store.UserRef{{ID: "user-b"}, {ID: "user-a"}},
	}
	if changes := diffTask(before, after); len(changes) != 0 {
		t.Fatalf("expected reordering to produce no changes, got %+v", changes)
	}
}

func TestDiffTaskClearedDueDate(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := store.Task{DueDate: &due}
	after := store.Task{}

	changes := diffTask(before, after)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].OldValue != "2026-03-01" || changes[0].NewValue != "none" {
		t.Fatalf("cleared due date values wrong: %+v", changes[0])
	}
}

func TestRecordTaskActivitiesContinuesPastFailures(t *testing.T) {
	var inserted []store.TaskActivity
	fs := &fakeStore{
		insertTaskActivityFn: func(_ context.Context, activity store.TaskActivity) error {
			if activity.Action == "status_changed" {
				return context.DeadlineExceeded
			}
			inserted = append(inserted, activity)
			return nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "user-1", UserName: "Avery"}

	changes := []taskChange{
		{Action: "title_changed", Field: "title"},
		{Action: "status_changed", Field: "status"},
		{Action: "assigned", Field: "assignees", UserID: "user-b", UserName: "Bob"},
	}
	if err := svc.recordTaskActivities(context.Background(), session, "tsk_1", changes); err != nil {
		t.Fatalf("record activities: %v", err)
	}

	if len(inserted) != 2 {
		t.Fatalf("expected the failing record to be skipped, got %d inserts", len(inserted))
	}
	if inserted[1].Metadata["userId"] != "user-b" || inserted[1].Metadata["userName"] != "Bob" {
		t.Fatalf("assignee metadata missing: %+v", inserted[1].Metadata)
	}
	if inserted[0].PerformedBy != "user-1" || inserted[0].PerformedByName != "Avery" {
		t.Fatalf("actor attribution wrong: %+v", inserted[0])
	}
}
