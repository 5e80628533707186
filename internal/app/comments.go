package app

import (
	"context"
	"log"
	"net/http"
	"strings"

	"taskloom/api/internal/search"
	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

func (s *Service) AddComment(ctx context.Context, session Session, taskID string, input CommentInput) (map[string]any, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Comment body is required", nil)
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}

	comment := store.Comment{
		ID:         util.NewID("cmt"),
		TaskID:     taskID,
		AuthorID:   session.UserID,
		AuthorName: session.UserName,
		Body:       body,
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	runEffects(ctx, []effect{
		{name: "comment notifications", run: func(ctx context.Context) error {
			// A failed mention lookup must not take the watcher and
			// assignee fan-out down with it.
			mentioned, err := s.notifier.ExtractMentions(ctx, body)
			if err != nil {
				log.Printf("comments: resolve mentions on %s: %v", comment.ID, err)
				mentioned = nil
			}
			s.notifier.Mentioned(ctx, s.actor(session), task, comment, mentioned)

			// Watchers and assignees both hear about new comments; the
			// engine de-duplicates nothing here, so merge the sets first.
			recipients := make([]string, 0, len(task.Watchers)+len(task.Assignees))
			seen := make(map[string]struct{})
			for _, ref := range task.Watchers {
				if _, ok := seen[ref.ID]; ok {
					continue
				}
				seen[ref.ID] = struct{}{}
				recipients = append(recipients, ref.ID)
			}
			for _, ref := range task.Assignees {
				if _, ok := seen[ref.ID]; ok {
					continue
				}
				seen[ref.ID] = struct{}{}
				recipients = append(recipients, ref.ID)
			}
			s.notifier.CommentAdded(ctx, s.actor(session), task, comment, recipients)
			return nil
		}},
		{name: "search indexing", run: func(ctx context.Context) error {
			if s.search == nil {
				return nil
			}
			s.search.IndexComment(search.CommentRecord{
				ID:         comment.ID,
				Body:       comment.Body,
				TaskID:     taskID,
				ProjectID:  task.ProjectID,
				AuthorName: comment.AuthorName,
			})
			return nil
		}},
	})

	return commentPayload(comment, nil), nil
}

func (s *Service) ListTaskComments(ctx context.Context, session Session, taskID string) ([]map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}
	comments, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		reactions, err := s.store.ListCommentReactions(ctx, comment.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, commentPayload(comment, reactions))
	}
	return items, nil
}

// ReactToComment upserts the caller's single reaction; switching emoji moves
// the reaction rather than stacking a second one.
func (s *Service) ReactToComment(ctx context.Context, session Session, commentID string, input ReactionInput) ([]map[string]any, error) {
	emoji := strings.TrimSpace(input.Emoji)
	if emoji == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Emoji is required", nil)
	}
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, comment.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}
	if err := s.store.UpsertCommentReaction(ctx, commentID, session.UserID, emoji); err != nil {
		return nil, err
	}
	reactions, err := s.store.ListCommentReactions(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return reactionPayload(reactions), nil
}

func (s *Service) RemoveCommentReaction(ctx context.Context, session Session, commentID string) ([]map[string]any, error) {
	if _, err := s.store.GetComment(ctx, commentID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveCommentReaction(ctx, commentID, session.UserID); err != nil {
		return nil, err
	}
	reactions, err := s.store.ListCommentReactions(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return reactionPayload(reactions), nil
}

func commentPayload(comment store.Comment, reactions []store.ReactionCount) map[string]any {
	return map[string]any{
		"id":        comment.ID,
		"taskId":    comment.TaskID,
		"authorId":  comment.AuthorID,
		"author":    comment.AuthorName,
		"body":      comment.Body,
		"reactions": reactionPayload(reactions),
		"createdAt": comment.CreatedAt,
	}
}

func reactionPayload(reactions []store.ReactionCount) []map[string]any {
	items := make([]map[string]any, 0, len(reactions))
	for _, reaction := range reactions {
		items = append(items, map[string]any{
			"emoji": reaction.Emoji,
			"users": reaction.Users,
			"count": reaction.Count,
		})
	}
	return items
}
