package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertTaskActivity appends one entry to a task's history. The id is assigned
// by the sequence; entries are never updated or deleted afterwards, aside from
// actor anonymization.
func (s *PostgresStore) InsertTaskActivity(ctx context.Context, activity TaskActivity) error {
	metadata, err := encodeActivityMetadata(activity.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_activities (task_id, performed_by, performed_by_name, action, field, old_value, new_value, details, metadata)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9)
	`, activity.TaskID, activity.PerformedBy, activity.PerformedByName,
		activity.Action, activity.Field, activity.OldValue, activity.NewValue, activity.Details, metadata)
	if err != nil {
		return fmt.Errorf("insert task activity: %w", err)
	}
	return nil
}

// encodeActivityMetadata renders the metadata map as JSONB bytes, nil for an
// empty map so the column stays NULL.
func encodeActivityMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode activity metadata: %w", err)
	}
	return encoded, nil
}

func (s *PostgresStore) ListTaskActivities(ctx context.Context, taskID string) ([]TaskActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, COALESCE(performed_by, ''), COALESCE(performed_by_name, ''),
			action, COALESCE(field, ''), COALESCE(old_value, ''), COALESCE(new_value, ''),
			COALESCE(details, ''), metadata, created_at
		FROM task_activities
		WHERE task_id=$1
		ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task activities: %w", err)
	}
	defer rows.Close()

	items := make([]TaskActivity, 0)
	for rows.Next() {
		var item TaskActivity
		var metadata []byte
		if err := rows.Scan(
			&item.ID,
			&item.TaskID,
			&item.PerformedBy,
			&item.PerformedByName,
			&item.Action,
			&item.Field,
			&item.OldValue,
			&item.NewValue,
			&item.Details,
			&metadata,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task activity: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task activities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountActivitiesBy(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_activities WHERE performed_by=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AnonymizeActivitiesBy(ctx context.Context, userID, stamp string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE task_activities SET performed_by=NULL, performed_by_name=$2 WHERE performed_by=$1
	`, userID, stamp)
	if err != nil {
		return fmt.Errorf("anonymize activities: %w", err)
	}
	return nil
}
