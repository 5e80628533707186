// Package notify fans notifications out to task and organization participants.
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"

	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

// Store is the persistence surface the engine needs.
type Store interface {
	InsertNotification(ctx context.Context, notification store.Notification) error
	FindUserByHandle(ctx context.Context, handle string) (store.User, error)
}

// Actor identifies who triggered an event. Notifications are never delivered
// back to the actor.
type Actor struct {
	ID   string
	Name string
}

// Engine writes notifications. Delivery to one recipient never blocks
// delivery to the rest; failures are logged and skipped.
type Engine struct {
	store Store
}

func NewEngine(s Store) *Engine {
	return &Engine{store: s}
}

func (e *Engine) deliver(ctx context.Context, n store.Notification) {
	if n.RecipientID == "" || n.RecipientID == n.SenderID {
		return
	}
	n.ID = util.NewID("ntf")
	if err := e.store.InsertNotification(ctx, n); err != nil {
		log.Printf("notify: deliver %s to %s: %v", n.Type, n.RecipientID, err)
	}
}

// TaskAssigned notifies each newly assigned user.
func (e *Engine) TaskAssigned(ctx context.Context, actor Actor, task store.Task, assigneeIDs []string) {
	for _, recipientID := range assigneeIDs {
		e.deliver(ctx, store.Notification{
			RecipientID:   recipientID,
			SenderID:      actor.ID,
			SenderName:    actor.Name,
			Type:          "task_assigned",
			Title:         "New task assignment",
			Message:       fmt.Sprintf("%s assigned you to \"%s\"", actor.Name, task.Title),
			RelatedTaskID: task.ID,
		})
	}
}

// TaskUpdated notifies the task's watchers and assignees about field changes.
func (e *Engine) TaskUpdated(ctx context.Context, actor Actor, task store.Task, summary string, recipientIDs []string) {
	for _, recipientID := range recipientIDs {
		e.deliver(ctx, store.Notification{
			RecipientID:   recipientID,
			SenderID:      actor.ID,
			SenderName:    actor.Name,
			Type:          "task_updated",
			Title:         "Task updated",
			Message:       fmt.Sprintf("%s updated \"%s\": %s", actor.Name, task.Title, summary),
			RelatedTaskID: task.ID,
		})
	}
}

// CommentAdded notifies task participants about a new comment.
func (e *Engine) CommentAdded(ctx context.Context, actor Actor, task store.Task, comment store.Comment, recipientIDs []string) {
	for _, recipientID := range recipientIDs {
		e.deliver(ctx, store.Notification{
			RecipientID:      recipientID,
			SenderID:         actor.ID,
			SenderName:       actor.Name,
			Type:             "comment_added",
			Title:            "New comment",
			Message:          fmt.Sprintf("%s commented on \"%s\"", actor.Name, task.Title),
			RelatedTaskID:    task.ID,
			RelatedCommentID: comment.ID,
		})
	}
}

// Mentioned notifies users referenced with @handle in a comment body.
func (e *Engine) Mentioned(ctx context.Context, actor Actor, task store.Task, comment store.Comment, mentioned []store.User) {
	for _, user := range mentioned {
		e.deliver(ctx, store.Notification{
			RecipientID:      user.ID,
			SenderID:         actor.ID,
			SenderName:       actor.Name,
			Type:             "mentioned",
			Title:            "You were mentioned",
			Message:          fmt.Sprintf("%s mentioned you on \"%s\"", actor.Name, task.Title),
			RelatedTaskID:    task.ID,
			RelatedCommentID: comment.ID,
		})
	}
}

// OrgMemberAdded notifies a user they joined an organization.
func (e *Engine) OrgMemberAdded(ctx context.Context, actor Actor, org store.Organization, recipientID string) {
	e.deliver(ctx, store.Notification{
		RecipientID:  recipientID,
		SenderID:     actor.ID,
		SenderName:   actor.Name,
		Type:         "org_member_added",
		Title:        "Added to organization",
		Message:      fmt.Sprintf("%s added you to %s", actor.Name, org.Name),
		RelatedOrgID: org.ID,
	})
}

// OrgRoleChanged notifies a member of their new role.
func (e *Engine) OrgRoleChanged(ctx context.Context, actor Actor, org store.Organization, recipientID, role string) {
	e.deliver(ctx, store.Notification{
		RecipientID:  recipientID,
		SenderID:     actor.ID,
		SenderName:   actor.Name,
		Type:         "org_role_changed",
		Title:        "Role changed",
		Message:      fmt.Sprintf("%s changed your role in %s to %s", actor.Name, org.Name, role),
		RelatedOrgID: org.ID,
	})
}

// ProjectMemberAdded notifies a user they joined a project.
func (e *Engine) ProjectMemberAdded(ctx context.Context, actor Actor, project store.Project, recipientID string) {
	e.deliver(ctx, store.Notification{
		RecipientID:      recipientID,
		SenderID:         actor.ID,
		SenderName:       actor.Name,
		Type:             "project_member_added",
		Title:            "Added to project",
		Message:          fmt.Sprintf("%s added you to %s", actor.Name, project.Name),
		RelatedProjectID: project.ID,
	})
}

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ExtractMentions resolves @handle tokens in a comment body against email and
// display name, case-sensitive and exact. Unresolvable tokens are dropped,
// resolved users are de-duplicated, and first-mention order is preserved.
func (e *Engine) ExtractMentions(ctx context.Context, body string) ([]store.User, error) {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	users := make([]store.User, 0, len(matches))
	for _, match := range matches {
		handle := match[1]
		user, err := e.store.FindUserByHandle(ctx, handle)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve mention @%s: %w", handle, err)
		}
		if seen[user.ID] {
			continue
		}
		seen[user.ID] = true
		users = append(users, user)
	}
	return users, nil
}
