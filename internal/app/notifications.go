package app

import (
	"context"
	"net/http"

	"taskloom/api/internal/store"
)

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool) ([]map[string]any, error) {
	notifications, err := s.store.ListNotifications(ctx, session.UserID, unreadOnly)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notifications))
	for _, notification := range notifications {
		items = append(items, notificationPayload(notification))
	}
	return items, nil
}

// MarkNotificationRead flips the single mutable field on a notification. The
// store matches on recipient, so a caller cannot mark someone else's.
func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	marked, err := s.store.MarkNotificationRead(ctx, notificationID, session.UserID)
	if err != nil {
		return err
	}
	if !marked {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
	}
	return nil
}

func (s *Service) CountUnreadNotifications(ctx context.Context, session Session) (int, error) {
	return s.store.CountUnreadNotifications(ctx, session.UserID)
}

func notificationPayload(notification store.Notification) map[string]any {
	return map[string]any{
		"id":               notification.ID,
		"senderId":         notification.SenderID,
		"sender":           notification.SenderName,
		"type":             notification.Type,
		"title":            notification.Title,
		"message":          notification.Message,
		"relatedTaskId":    notification.RelatedTaskID,
		"relatedCommentId": notification.RelatedCommentID,
		"relatedOrgId":     notification.RelatedOrgID,
		"relatedProjectId": notification.RelatedProjectID,
		"read":             notification.Read,
		"createdAt":        notification.CreatedAt,
	}
}
