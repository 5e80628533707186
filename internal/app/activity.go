package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"taskloom/api/internal/store"
)

// taskChange is one changed tracked field on a task update. Assignee set
// changes decompose into one change per affected user because each carries
// its own notification and membership side effects.
type taskChange struct {
	Action   string
	Field    string
	OldValue string
	NewValue string
	Details  string
	UserID   string
	UserName string
}

// diffTask compares the pre-update and post-update task over the tracked
// field set. Changes come back in a stable order: title, description, status,
// priority, due date, then per-user assignee changes (assigned before
// unassigned), so the activity log replays deterministically.
func diffTask(before, after store.Task) []taskChange {
	changes := make([]taskChange, 0, 4)

	scalar := func(field, action, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		changes = append(changes, taskChange{
			Action:   action,
			Field:    field,
			OldValue: oldValue,
			NewValue: newValue,
			Details:  fmt.Sprintf("%s changed from %q to %q", field, oldValue, newValue),
		})
	}

	scalar("title", "title_changed", before.Title, after.Title)
	scalar("description", "description_changed", before.Description, after.Description)
	scalar("status", "status_changed", before.Status, after.Status)
	scalar("priority", "priority_changed", before.Priority, after.Priority)

	if !sameInstant(before.DueDate, after.DueDate) {
		changes = append(changes, taskChange{
			Action:   "due_date_changed",
			Field:    "dueDate",
			OldValue: formatDue(before.DueDate),
			NewValue: formatDue(after.DueDate),
			Details:  fmt.Sprintf("due date changed from %s to %s", formatDue(before.DueDate), formatDue(after.DueDate)),
		})
	}

	if !sameUserSet(before.Assignees, after.Assignees) {
		beforeIDs := userRefIDs(before.Assignees)
		for _, ref := range after.Assignees {
			if _, ok := beforeIDs[ref.ID]; ok {
				continue
			}
			changes = append(changes, taskChange{
				Action:   "assigned",
				Field:    "assignees",
				NewValue: ref.ID,
				Details:  fmt.Sprintf("assigned %s", ref.Name),
				UserID:   ref.ID,
				UserName: ref.Name,
			})
		}
		afterIDs := userRefIDs(after.Assignees)
		for _, ref := range before.Assignees {
			if _, ok := afterIDs[ref.ID]; ok {
				continue
			}
			changes = append(changes, taskChange{
				Action:   "unassigned",
				Field:    "assignees",
				OldValue: ref.ID,
				Details:  fmt.Sprintf("unassigned %s", ref.Name),
				UserID:   ref.ID,
				UserName: ref.Name,
			})
		}
	}

	return changes
}

// sameUserSet compares assignee sets ignoring order.
func sameUserSet(a, b []store.UserRef) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, 0, len(a))
	bs := make([]string, 0, len(b))
	for _, ref := range a {
		as = append(as, ref.ID)
	}
	for _, ref := range b {
		bs = append(bs, ref.ID)
	}
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func userRefIDs(refs []store.UserRef) map[string]struct{} {
	ids := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		ids[ref.ID] = struct{}{}
	}
	return ids
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("2006-01-02")
}

// recordTaskActivities writes one append-only activity per change. A failed
// insert is logged and skipped so one bad record never drops the rest of the
// audit trail.
func (s *Service) recordTaskActivities(ctx context.Context, session Session, taskID string, changes []taskChange) error {
	for _, change := range changes {
		activity := store.TaskActivity{
			TaskID:          taskID,
			PerformedBy:     session.UserID,
			PerformedByName: session.UserName,
			Action:          change.Action,
			Field:           change.Field,
			OldValue:        change.OldValue,
			NewValue:        change.NewValue,
			Details:         change.Details,
		}
		if change.UserID != "" {
			activity.Metadata = map[string]any{"userId": change.UserID, "userName": change.UserName}
		}
		if err := s.store.InsertTaskActivity(ctx, activity); err != nil {
			log.Printf("activity: record %s on task %s: %v", change.Action, taskID, err)
		}
	}
	return nil
}
