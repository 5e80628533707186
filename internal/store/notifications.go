package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertNotification(ctx context.Context, notification Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, sender_name, type, title, message,
			related_task_id, related_comment_id, related_org_id, related_project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''))
	`, notification.ID, notification.RecipientID, notification.SenderID, notification.SenderName,
		notification.Type, notification.Title, notification.Message,
		notification.RelatedTaskID, notification.RelatedCommentID, notification.RelatedOrgID, notification.RelatedProjectID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error) {
	query := `
		SELECT id, recipient_id, COALESCE(sender_id, ''), COALESCE(sender_name, ''), type, title, message,
			COALESCE(related_task_id, ''), COALESCE(related_comment_id, ''),
			COALESCE(related_org_id, ''), COALESCE(related_project_id, ''), read, created_at
		FROM notifications
		WHERE recipient_id=$1`
	if unreadOnly {
		query += ` AND NOT read`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(
			&item.ID,
			&item.RecipientID,
			&item.SenderID,
			&item.SenderName,
			&item.Type,
			&item.Title,
			&item.Message,
			&item.RelatedTaskID,
			&item.RelatedCommentID,
			&item.RelatedOrgID,
			&item.RelatedProjectID,
			&item.Read,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, recipientID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read=TRUE WHERE id=$1 AND recipient_id=$2
	`, notificationID, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND NOT read
	`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteNotificationsForRecipient(ctx context.Context, recipientID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id=$1`, recipientID)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (s *PostgresStore) AnonymizeNotificationsFrom(ctx context.Context, senderID, stamp string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET sender_id=NULL, sender_name=$2 WHERE sender_id=$1
	`, senderID, stamp)
	if err != nil {
		return fmt.Errorf("anonymize notifications: %w", err)
	}
	return nil
}
