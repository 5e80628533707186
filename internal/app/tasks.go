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

func (s *Service) CreateTask(ctx context.Context, session Session, input CreateTaskInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Task title is required", nil)
	}
	status := input.Status
	if status == "" {
		status = "todo"
	}
	if _, ok := allowedTaskStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid task status", map[string]any{"status": status})
	}
	priority := input.Priority
	if priority == "" {
		priority = "medium"
	}
	if _, ok := allowedTaskPriorities[priority]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid task priority", map[string]any{"priority": priority})
	}

	project, err := s.store.GetProject(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectAccess(ctx, project, session.UserID); err != nil {
		return nil, err
	}

	assignees := make([]store.UserRef, 0, len(input.Assignees))
	for _, userID := range input.Assignees {
		user, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Assignee not found", map[string]any{"userId": userID})
		}
		assignees = append(assignees, store.UserRef{ID: user.ID, Name: user.DisplayName})
	}

	task := store.Task{
		ID:            util.NewID("tsk"),
		ProjectID:     project.ID,
		Title:         title,
		Description:   input.Description,
		Status:        status,
		Priority:      priority,
		DueDate:       input.DueDate,
		CreatedBy:     session.UserID,
		CreatedByName: session.UserName,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	// Creator auto-watches; assignee rows are set operations so a duplicate
	// id in the input is harmless.
	if _, err := s.store.AddTaskWatcher(ctx, task.ID, session.UserID); err != nil {
		log.Printf("tasks: auto-watch %s on %s: %v", session.UserID, task.ID, err)
	}
	assigneeIDs := make([]string, 0, len(assignees))
	for _, ref := range assignees {
		if _, err := s.store.AddTaskAssignee(ctx, task.ID, ref.ID); err != nil {
			log.Printf("tasks: assign %s to %s: %v", ref.ID, task.ID, err)
			continue
		}
		assigneeIDs = append(assigneeIDs, ref.ID)
	}
	task.Assignees = assignees
	task.Watchers = []store.UserRef{{ID: session.UserID, Name: session.UserName}}

	runEffects(ctx, []effect{
		{name: "task created activity", run: func(ctx context.Context) error {
			return s.store.InsertTaskActivity(ctx, store.TaskActivity{
				TaskID:          task.ID,
				PerformedBy:     session.UserID,
				PerformedByName: session.UserName,
				Action:          "created",
				Details:         "created task " + task.Title,
			})
		}},
		{name: "workspace membership repair", run: func(ctx context.Context) error {
			return s.EnsureWorkspaceMembersForTask(ctx, assigneeIDs, task.ID)
		}},
		{name: "assignment notifications", run: func(ctx context.Context) error {
			s.notifier.TaskAssigned(ctx, s.actor(session), task, assigneeIDs)
			return nil
		}},
		{name: "search indexing", run: func(ctx context.Context) error {
			s.indexTask(task)
			return nil
		}},
	})

	return taskPayload(task), nil
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}
	return taskPayload(task), nil
}

func (s *Service) ListProjectTasks(ctx context.Context, session Session, projectID string) ([]map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.requireProjectAccess(ctx, project, session.UserID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskPayload(task))
	}
	return items, nil
}

// UpdateTask applies the tracked-field update, then runs the post-mutation
// effect chain: activity records, workspace membership repair, notification
// fan-out, search reindex. The field update is the primary mutation; an
// effect failure never undoes it.
func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, input UpdateTaskInput) (map[string]any, error) {
	before, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, before, session.UserID); err != nil {
		return nil, err
	}

	after := before
	if input.Title != nil {
		after.Title = strings.TrimSpace(*input.Title)
		if after.Title == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Task title is required", nil)
		}
	}
	if input.Description != nil {
		after.Description = *input.Description
	}
	if input.Status != nil {
		if _, ok := allowedTaskStatuses[*input.Status]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid task status", map[string]any{"status": *input.Status})
		}
		after.Status = *input.Status
	}
	if input.Priority != nil {
		if _, ok := allowedTaskPriorities[*input.Priority]; !ok {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid task priority", map[string]any{"priority": *input.Priority})
		}
		after.Priority = *input.Priority
	}
	if input.DueDateSet {
		after.DueDate = input.DueDate
	}

	var addedIDs, removedIDs []string
	if input.Assignees != nil {
		nextRefs := make([]store.UserRef, 0, len(*input.Assignees))
		seen := make(map[string]struct{}, len(*input.Assignees))
		for _, userID := range *input.Assignees {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			if ref, ok := findUserRef(before.Assignees, userID); ok {
				nextRefs = append(nextRefs, ref)
				continue
			}
			user, err := s.store.GetUserByID(ctx, userID)
			if err != nil {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Assignee not found", map[string]any{"userId": userID})
			}
			nextRefs = append(nextRefs, store.UserRef{ID: user.ID, Name: user.DisplayName})
			addedIDs = append(addedIDs, user.ID)
		}
		for _, ref := range before.Assignees {
			if _, ok := seen[ref.ID]; !ok {
				removedIDs = append(removedIDs, ref.ID)
			}
		}
		after.Assignees = nextRefs
	}

	if err := s.store.UpdateTaskFields(ctx, taskID, after.Title, after.Description, after.Status, after.Priority, after.DueDate); err != nil {
		return nil, err
	}
	for _, userID := range addedIDs {
		if _, err := s.store.AddTaskAssignee(ctx, taskID, userID); err != nil {
			log.Printf("tasks: assign %s to %s: %v", userID, taskID, err)
		}
	}
	for _, userID := range removedIDs {
		if err := s.store.RemoveTaskAssignee(ctx, taskID, userID); err != nil {
			log.Printf("tasks: unassign %s from %s: %v", userID, taskID, err)
		}
	}

	changes := diffTask(before, after)
	fieldSummaries := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.Field != "assignees" {
			fieldSummaries = append(fieldSummaries, change.Details)
		}
	}

	runEffects(ctx, []effect{
		{name: "task activity records", run: func(ctx context.Context) error {
			return s.recordTaskActivities(ctx, session, taskID, changes)
		}},
		{name: "workspace membership repair", run: func(ctx context.Context) error {
			return s.EnsureWorkspaceMembersForTask(ctx, addedIDs, taskID)
		}},
		{name: "notification fan-out", run: func(ctx context.Context) error {
			s.notifier.TaskAssigned(ctx, s.actor(session), after, addedIDs)
			if len(fieldSummaries) > 0 {
				recipients := make([]string, 0, len(after.Assignees))
				added := make(map[string]struct{}, len(addedIDs))
				for _, id := range addedIDs {
					added[id] = struct{}{}
				}
				for _, ref := range after.Assignees {
					if _, ok := added[ref.ID]; ok {
						continue
					}
					recipients = append(recipients, ref.ID)
				}
				s.notifier.TaskUpdated(ctx, s.actor(session), after, strings.Join(fieldSummaries, "; "), recipients)
			}
			return nil
		}},
		{name: "search indexing", run: func(ctx context.Context) error {
			s.indexTask(after)
			return nil
		}},
	})

	return taskPayload(after), nil
}

// DeleteTask is restricted to the task creator and the project owner.
func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	project, err := s.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	if session.UserID != task.CreatedBy && session.UserID != project.OwnerID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the task creator or project owner can delete a task", nil)
	}

	docs, err := s.store.ListTaskDocuments(ctx, taskID)
	if err != nil {
		log.Printf("tasks: list documents of %s before delete: %v", taskID, err)
		docs = nil
	}
	comments, err := s.store.ListTaskComments(ctx, taskID)
	if err != nil {
		log.Printf("tasks: list comments of %s before delete: %v", taskID, err)
		comments = nil
	}

	deleted, err := s.store.DeleteTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	runEffects(ctx, []effect{
		{name: "blob cleanup", run: func(ctx context.Context) error {
			if s.blobs == nil {
				return nil
			}
			for _, doc := range docs {
				if err := s.blobs.Remove(ctx, doc.ObjectKey); err != nil {
					log.Printf("tasks: remove blob %s: %v", doc.ObjectKey, err)
				}
			}
			return nil
		}},
		{name: "search deindexing", run: func(ctx context.Context) error {
			if s.search == nil {
				return nil
			}
			s.search.DeleteTask(taskID)
			for _, comment := range comments {
				s.search.DeleteComment(comment.ID)
			}
			return nil
		}},
	})
	return nil
}

func (s *Service) WatchTask(ctx context.Context, session Session, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return err
	}
	_, err = s.store.AddTaskWatcher(ctx, taskID, session.UserID)
	return err
}

func (s *Service) UnwatchTask(ctx context.Context, session Session, taskID string) error {
	return s.store.RemoveTaskWatcher(ctx, taskID, session.UserID)
}

func (s *Service) ListTaskActivities(ctx context.Context, session Session, taskID string) ([]map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}
	activities, err := s.store.ListTaskActivities(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(activities))
	for _, activity := range activities {
		items = append(items, map[string]any{
			"id":          activity.ID,
			"taskId":      activity.TaskID,
			"performedBy": activity.PerformedBy,
			"performer":   activity.PerformedByName,
			"action":      activity.Action,
			"field":       activity.Field,
			"oldValue":    activity.OldValue,
			"newValue":    activity.NewValue,
			"details":     activity.Details,
			"metadata":    activity.Metadata,
			"createdAt":   activity.CreatedAt,
		})
	}
	return items, nil
}

func (s *Service) indexTask(task store.Task) {
	if s.search == nil {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		ProjectID:   task.ProjectID,
		Status:      task.Status,
		Priority:    task.Priority,
	})
}

func findUserRef(refs []store.UserRef, userID string) (store.UserRef, bool) {
	for _, ref := range refs {
		if ref.ID == userID {
			return ref, true
		}
	}
	return store.UserRef{}, false
}

func taskPayload(task store.Task) map[string]any {
	assignees := make([]map[string]any, 0, len(task.Assignees))
	for _, ref := range task.Assignees {
		assignees = append(assignees, map[string]any{"id": ref.ID, "name": ref.Name})
	}
	watchers := make([]map[string]any, 0, len(task.Watchers))
	for _, ref := range task.Watchers {
		watchers = append(watchers, map[string]any{"id": ref.ID, "name": ref.Name})
	}
	return map[string]any{
		"id":          task.ID,
		"projectId":   task.ProjectID,
		"title":       task.Title,
		"description": task.Description,
		"status":      task.Status,
		"priority":    task.Priority,
		"dueDate":     task.DueDate,
		"createdBy":   task.CreatedBy,
		"creator":     task.CreatedByName,
		"assignees":   assignees,
		"watchers":    watchers,
		"createdAt":   task.CreatedAt,
		"updatedAt":   task.UpdatedAt,
	}
}

// requireTaskAccess gates reads and updates to workspace participants.
func (s *Service) requireTaskAccess(ctx context.Context, task store.Task, userID string) error {
	workspace, err := s.store.WorkspaceForTask(ctx, task.ID)
	if err != nil {
		return err
	}
	return s.requireWorkspaceAccess(ctx, workspace, userID)
}

func (s *Service) requireProjectAccess(ctx context.Context, project store.Project, userID string) error {
	if project.OwnerID == userID {
		return nil
	}
	member, err := s.store.IsProjectMember(ctx, project.ID, userID)
	if err != nil {
		return err
	}
	if member {
		return nil
	}
	workspace, err := s.store.WorkspaceForProject(ctx, project.ID)
	if err != nil {
		return err
	}
	return s.requireWorkspaceAccess(ctx, workspace, userID)
}

func (s *Service) requireWorkspaceAccess(ctx context.Context, workspace store.Workspace, userID string) error {
	if workspace.OwnerID == userID {
		return nil
	}
	member, err := s.store.IsWorkspaceMember(ctx, workspace.ID, userID)
	if err != nil {
		return err
	}
	if !member {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Not a workspace member", nil)
	}
	return nil
}
