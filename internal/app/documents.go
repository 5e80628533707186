package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"taskloom/api/internal/files"
	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

// DocumentUpload is one file in an attachment batch.
type DocumentUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// UploadDocuments attaches a batch of files to a task. Batch size and
// per-file size are enforced before anything is sent to the object store.
// Files upload one by one; an upload failure aborts the rest of the batch but
// leaves already stored documents attached.
func (s *Service) UploadDocuments(ctx context.Context, session Session, taskID string, uploads []DocumentUpload) ([]map[string]any, error) {
	if s.blobs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_DISABLED", "Document storage is not configured", nil)
	}
	if len(uploads) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "No files in upload", nil)
	}
	if len(uploads) > files.MaxBatchFiles {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("At most %d files per upload", files.MaxBatchFiles), nil)
	}
	for _, upload := range uploads {
		if upload.Size > files.MaxFileSize {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "File exceeds the 10MB limit", map[string]any{"fileName": upload.FileName})
		}
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(uploads))
	for _, upload := range uploads {
		doc := store.Document{
			ID:          util.NewID("doc"),
			TaskID:      taskID,
			UploaderID:  session.UserID,
			FileName:    upload.FileName,
			ContentType: upload.ContentType,
			Category:    string(files.CategoryForMime(upload.ContentType)),
			SizeBytes:   upload.Size,
		}
		doc.ObjectKey = fmt.Sprintf("tasks/%s/%s/%s", taskID, doc.ID, upload.FileName)

		if err := s.blobs.Put(ctx, doc.ObjectKey, upload.Data, upload.Size, upload.ContentType); err != nil {
			return nil, fmt.Errorf("store %s: %w", upload.FileName, err)
		}
		if err := s.store.InsertDocument(ctx, doc); err != nil {
			if removeErr := s.blobs.Remove(ctx, doc.ObjectKey); removeErr != nil {
				log.Printf("documents: orphaned blob %s: %v", doc.ObjectKey, removeErr)
			}
			return nil, err
		}
		items = append(items, documentPayload(doc))
	}
	return items, nil
}

func (s *Service) ListTaskDocuments(ctx context.Context, session Session, taskID string) ([]map[string]any, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return nil, err
	}
	docs, err := s.store.ListTaskDocuments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		items = append(items, documentPayload(doc))
	}
	return items, nil
}

// OpenDocument returns the document record and a reader over its content.
// The caller owns closing the reader.
func (s *Service) OpenDocument(ctx context.Context, session Session, docID string) (store.Document, io.ReadCloser, error) {
	if s.blobs == nil {
		return store.Document{}, nil, domainError(http.StatusServiceUnavailable, "UPLOADS_DISABLED", "Document storage is not configured", nil)
	}
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return store.Document{}, nil, err
	}
	task, err := s.store.GetTask(ctx, doc.TaskID)
	if err != nil {
		return store.Document{}, nil, err
	}
	if err := s.requireTaskAccess(ctx, task, session.UserID); err != nil {
		return store.Document{}, nil, err
	}
	reader, err := s.blobs.Get(ctx, doc.ObjectKey)
	if err != nil {
		return store.Document{}, nil, err
	}
	return doc, reader, nil
}

// DeleteDocument is restricted to the uploader and the project owner. The
// database row is the primary mutation; blob removal is best effort.
func (s *Service) DeleteDocument(ctx context.Context, session Session, docID string) error {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, doc.TaskID)
	if err != nil {
		return err
	}
	project, err := s.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	if session.UserID != doc.UploaderID && session.UserID != project.OwnerID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the uploader or project owner can delete a document", nil)
	}

	deleted, err := s.store.DeleteDocument(ctx, docID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	runEffects(ctx, []effect{
		{name: "blob removal", run: func(ctx context.Context) error {
			if s.blobs == nil {
				return nil
			}
			return s.blobs.Remove(ctx, doc.ObjectKey)
		}},
	})
	return nil
}

func documentPayload(doc store.Document) map[string]any {
	return map[string]any{
		"id":          doc.ID,
		"taskId":      doc.TaskID,
		"uploaderId":  doc.UploaderID,
		"fileName":    doc.FileName,
		"contentType": doc.ContentType,
		"category":    doc.Category,
		"sizeBytes":   doc.SizeBytes,
		"createdAt":   doc.CreatedAt,
	}
}
