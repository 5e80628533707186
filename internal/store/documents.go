package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, task_id, uploader_id, file_name, object_key, content_type, category, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, doc.ID, doc.TaskID, doc.UploaderID, doc.FileName, doc.ObjectKey, doc.ContentType, doc.Category, doc.SizeBytes)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (Document, error) {
	var item Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, COALESCE(uploader_id, ''), file_name, object_key, content_type, category, size_bytes, created_at
		FROM documents
		WHERE id=$1
	`, docID).Scan(
		&item.ID,
		&item.TaskID,
		&item.UploaderID,
		&item.FileName,
		&item.ObjectKey,
		&item.ContentType,
		&item.Category,
		&item.SizeBytes,
		&item.CreatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTaskDocuments(ctx context.Context, taskID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, COALESCE(uploader_id, ''), file_name, object_key, content_type, category, size_bytes, created_at
		FROM documents
		WHERE task_id=$1
		ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(
			&item.ID,
			&item.TaskID,
			&item.UploaderID,
			&item.FileName,
			&item.ObjectKey,
			&item.ContentType,
			&item.Category,
			&item.SizeBytes,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, docID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, docID)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document rows: %w", err)
	}
	return affected > 0, nil
}
