package store

import (
	"context"
	"testing"

	"taskloom/api/internal/util"
)

// TestListCommentReactionsAggregatesUsers verifies the per-emoji aggregate
// includes the reacting users, not just the count, and that re-reacting with
// another emoji moves the user between groups.
func TestListCommentReactionsAggregatesUsers(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()
	authorID, taskID := seedTask(t, db)

	secondID := util.NewID("usr")
	if _, err := db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, email_verified)
		VALUES ($1, 'Blair', $1 || '@example.com', 'x', TRUE)
	`, secondID); err != nil {
		t.Fatalf("seed second user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM users WHERE id=$1`, secondID)
	})

	commentID := util.NewID("cmt")
	if err := store.CreateComment(ctx, Comment{
		ID: commentID, TaskID: taskID, AuthorID: authorID, AuthorName: "Avery", Body: "looks good",
	}); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	if err := store.UpsertCommentReaction(ctx, commentID, authorID, "👍"); err != nil {
		t.Fatalf("react author: %v", err)
	}
	if err := store.UpsertCommentReaction(ctx, commentID, secondID, "👍"); err != nil {
		t.Fatalf("react second: %v", err)
	}

	reactions, err := store.ListCommentReactions(ctx, commentID)
	if err != nil {
		t.Fatalf("list reactions: %v", err)
	}
	if len(reactions) != 1 {
		t.Fatalf("expected one emoji group, got %d", len(reactions))
	}
	if reactions[0].Count != 2 || len(reactions[0].Users) != 2 {
		t.Fatalf("expected 2 users in the 👍 group, got count=%d users=%v", reactions[0].Count, reactions[0].Users)
	}
	if reactions[0].Users[0] != authorID {
		t.Fatalf("expected first reactor %s first, got %v", authorID, reactions[0].Users)
	}

	// Switching emoji moves the user, never duplicates the reaction.
	if err := store.UpsertCommentReaction(ctx, commentID, secondID, "🎉"); err != nil {
		t.Fatalf("switch emoji: %v", err)
	}
	reactions, err = store.ListCommentReactions(ctx, commentID)
	if err != nil {
		t.Fatalf("list after switch: %v", err)
	}
	if len(reactions) != 2 {
		t.Fatalf("expected two emoji groups after switch, got %d", len(reactions))
	}
	for _, reaction := range reactions {
		if reaction.Count != 1 || len(reaction.Users) != 1 {
			t.Fatalf("expected singleton group %s, got count=%d users=%v", reaction.Emoji, reaction.Count, reaction.Users)
		}
	}
}
