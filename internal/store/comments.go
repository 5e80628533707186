package store

import (
	"context"
	"fmt"
	"strings"
)

func (s *PostgresStore) CreateComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, author_id, author_name, body)
		VALUES ($1, $2, $3, $4, $5)
	`, comment.ID, comment.TaskID, comment.AuthorID, comment.AuthorName, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, COALESCE(author_id, ''), COALESCE(author_name, ''), body, created_at
		FROM comments
		WHERE id=$1
	`, commentID).Scan(&item.ID, &item.TaskID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, COALESCE(author_id, ''), COALESCE(author_name, ''), body, created_at
		FROM comments
		WHERE task_id=$1
		ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// UpsertCommentReaction records the user's single reaction on a comment.
// Reacting again with a different emoji replaces the previous one.
func (s *PostgresStore) UpsertCommentReaction(ctx context.Context, commentID, userID, emoji string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comment_reactions (comment_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (comment_id, user_id) DO UPDATE SET emoji=EXCLUDED.emoji, created_at=NOW()
	`, commentID, userID, emoji)
	if err != nil {
		return fmt.Errorf("upsert comment reaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveCommentReaction(ctx context.Context, commentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM comment_reactions WHERE comment_id=$1 AND user_id=$2
	`, commentID, userID)
	if err != nil {
		return fmt.Errorf("remove comment reaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCommentReactions(ctx context.Context, commentID string) ([]ReactionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emoji, string_agg(user_id, ',' ORDER BY created_at, user_id), COUNT(*)
		FROM comment_reactions
		WHERE comment_id=$1
		GROUP BY emoji
		ORDER BY emoji ASC
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment reactions: %w", err)
	}
	defer rows.Close()

	items := make([]ReactionCount, 0)
	for rows.Next() {
		var item ReactionCount
		var users string
		if err := rows.Scan(&item.Emoji, &users, &item.Count); err != nil {
			return nil, fmt.Errorf("scan reaction count: %w", err)
		}
		// user_id never contains a comma (util.NewID hex with prefix)
		if users != "" {
			item.Users = strings.Split(users, ",")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reaction counts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountCommentsBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE author_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AnonymizeCommentsBy(ctx context.Context, userID, stamp string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET author_id=NULL, author_name=$2 WHERE author_id=$1
	`, userID, stamp)
	if err != nil {
		return fmt.Errorf("anonymize comments: %w", err)
	}
	return nil
}
