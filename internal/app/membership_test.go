package app

import (
	"context"
	"database/sql"
	"testing"

	"taskloom/api/internal/store"
)

func TestEnsureWorkspaceMemberSkipsOwner(t *testing.T) {
	fs := &fakeStore{
		workspaceForTaskFn: func(_ context.Context, taskID string) (store.Workspace, error) {
			return store.Workspace{ID: "wsp_1", OwnerID: "owner"}, nil
		},
		addWorkspaceMemberFn: func(_ context.Context, workspaceID, userID string) (bool, error) {
			t.Fatalf("owner must not be added to the member set")
			return false, nil
		},
	}
	svc := newTestService(fs)

	if err := svc.EnsureWorkspaceMemberForTask(context.Background(), "owner", "tsk_1"); err != nil {
		t.Fatalf("ensure member: %v", err)
	}
}

func TestEnsureWorkspaceMemberIsIdempotent(t *testing.T) {
	calls := 0
	fs := &fakeStore{
		workspaceForTaskFn: func(_ context.Context, taskID string) (store.Workspace, error) {
			return store.Workspace{ID: "wsp_1", OwnerID: "owner"}, nil
		},
		addWorkspaceMemberFn: func(_ context.Context, workspaceID, userID string) (bool, error) {
			calls++
			return calls == 1, nil
		},
	}
	svc := newTestService(fs)

	for i := 0; i < 3; i++ {
		if err := svc.EnsureWorkspaceMemberForTask(context.Background(), "user-b", "tsk_1"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected the set operation each time, got %d calls", calls)
	}
}

func TestEnsureWorkspaceMemberToleratesMissingWorkspace(t *testing.T) {
	fs := &fakeStore{
		workspaceForTaskFn: func(_ context.Context, taskID string) (store.Workspace, error) {
			return store.Workspace{}, sql.ErrNoRows
		},
	}
	svc := newTestService(fs)

	if err := svc.EnsureWorkspaceMemberForTask(context.Background(), "user-b", "tsk_gone"); err != nil {
		t.Fatalf("expected missing workspace to be a no-op, got %v", err)
	}
}

func TestEnsureWorkspaceMembersForTaskIsolatesFailures(t *testing.T) {
	var added []string
	fs := &fakeStore{
		workspaceForTaskFn: func(_ context.Context, taskID string) (store.Workspace, error) {
			return store.Workspace{ID: "wsp_1", OwnerID: "owner"}, nil
		},
		addWorkspaceMemberFn: func(_ context.Context, workspaceID, userID string) (bool, error) {
			if userID == "user-bad" {
				return false, context.DeadlineExceeded
			}
			added = append(added, userID)
			return true, nil
		},
	}
	svc := newTestService(fs)

	if err := svc.EnsureWorkspaceMembersForTask(context.Background(), []string{"user-a", "user-bad", "user-c"}, "tsk_1"); err != nil {
		t.Fatalf("ensure members: %v", err)
	}
	if len(added) != 2 || added[0] != "user-a" || added[1] != "user-c" {
		t.Fatalf("expected the failure to be isolated, got %v", added)
	}
}
