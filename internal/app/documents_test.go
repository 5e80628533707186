package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"taskloom/api/internal/files"
	"taskloom/api/internal/store"
)

type fakeBlobStore struct {
	objects map[string][]byte
	putErr  error
	removed []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(_ context.Context, objectKey string, data io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[objectKey] = content
	return nil
}

func (f *fakeBlobStore) Get(_ context.Context, objectKey string) (io.ReadCloser, error) {
	content, ok := f.objects[objectKey]
	if !ok {
		return nil, files.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (f *fakeBlobStore) Remove(_ context.Context, objectKey string) error {
	delete(f.objects, objectKey)
	f.removed = append(f.removed, objectKey)
	return nil
}

func TestUploadDocumentsDisabledWithoutBlobStore(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.UploadDocuments(context.Background(), Session{UserID: "owner"}, "tsk_1", []DocumentUpload{
		{FileName: "a.txt", Size: 1},
	})
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Code != "UPLOADS_DISABLED" {
		t.Fatalf("expected UPLOADS_DISABLED, got %v", err)
	}
}

func TestUploadDocumentsEnforcesBatchAndSizeLimits(t *testing.T) {
	svc := newTestService(taskFixture(store.Task{ID: "tsk_1", ProjectID: "prj_1"}))
	svc.blobs = newFakeBlobStore()
	session := Session{UserID: "owner"}

	_, err := svc.UploadDocuments(context.Background(), session, "tsk_1", nil)
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty batch, got %v", err)
	}

	tooMany := make([]DocumentUpload, files.MaxBatchFiles+1)
	for i := range tooMany {
		tooMany[i] = DocumentUpload{FileName: "f.txt", Size: 1, Data: strings.NewReader("x")}
	}
	_, err = svc.UploadDocuments(context.Background(), session, "tsk_1", tooMany)
	if !asDomainError(err, &domainErr) || domainErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for oversized batch, got %v", err)
	}

	_, err = svc.UploadDocuments(context.Background(), session, "tsk_1", []DocumentUpload{
		{FileName: "huge.bin", Size: files.MaxFileSize + 1},
	})
	if !asDomainError(err, &domainErr) || domainErr.Message != "File exceeds the 10MB limit" {
		t.Fatalf("expected file size rejection, got %v", err)
	}
}

func TestUploadDocumentsStoresBlobAndRow(t *testing.T) {
	fs := taskFixture(store.Task{ID: "tsk_1", ProjectID: "prj_1"})
	var inserted store.Document
	fs.insertDocumentFn = func(_ context.Context, doc store.Document) error {
		inserted = doc
		return nil
	}
	blobs := newFakeBlobStore()
	svc := newTestService(fs)
	svc.blobs = blobs

	items, err := svc.UploadDocuments(context.Background(), Session{UserID: "owner"}, "tsk_1", []DocumentUpload{
		{FileName: "diagram.png", ContentType: "image/png", Size: 4, Data: strings.NewReader("data")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one document, got %d", len(items))
	}

	if inserted.Category != "image" {
		t.Fatalf("expected image category, got %q", inserted.Category)
	}
	if inserted.UploaderID != "owner" {
		t.Fatalf("expected uploader attribution, got %q", inserted.UploaderID)
	}
	if !strings.HasPrefix(inserted.ObjectKey, "tasks/tsk_1/") || !strings.HasSuffix(inserted.ObjectKey, "/diagram.png") {
		t.Fatalf("unexpected object key %q", inserted.ObjectKey)
	}
	if _, ok := blobs.objects[inserted.ObjectKey]; !ok {
		t.Fatalf("blob missing under %q", inserted.ObjectKey)
	}
}

func TestUploadDocumentsRemovesBlobWhenInsertFails(t *testing.T) {
	fs := taskFixture(store.Task{ID: "tsk_1", ProjectID: "prj_1"})
	fs.insertDocumentFn = func(context.Context, store.Document) error {
		return context.DeadlineExceeded
	}
	blobs := newFakeBlobStore()
	svc := newTestService(fs)
	svc.blobs = blobs

	_, err := svc.UploadDocuments(context.Background(), Session{UserID: "owner"}, "tsk_1", []DocumentUpload{
		{FileName: "a.txt", ContentType: "text/plain", Size: 1, Data: strings.NewReader("x")},
	})
	if err == nil {
		t.Fatalf("expected insert failure to surface")
	}
	if len(blobs.objects) != 0 || len(blobs.removed) != 1 {
		t.Fatalf("expected orphaned blob to be removed, objects=%d removed=%v", len(blobs.objects), blobs.removed)
	}
}

func TestDeleteDocumentRestrictedToUploaderOrProjectOwner(t *testing.T) {
	fs := taskFixture(store.Task{ID: "tsk_1", ProjectID: "prj_1"})
	fs.getDocumentFn = func(_ context.Context, docID string) (store.Document, error) {
		return store.Document{ID: docID, TaskID: "tsk_1", UploaderID: "uploader", ObjectKey: "tasks/tsk_1/doc/a.txt"}, nil
	}
	blobs := newFakeBlobStore()
	blobs.objects["tasks/tsk_1/doc/a.txt"] = []byte("x")
	svc := newTestService(fs)
	svc.blobs = blobs

	err := svc.DeleteDocument(context.Background(), Session{UserID: "stranger"}, "doc_1")
	var domainErr *DomainError
	if !asDomainError(err, &domainErr) || domainErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403 for unrelated user, got %v", err)
	}

	if err := svc.DeleteDocument(context.Background(), Session{UserID: "uploader"}, "doc_1"); err != nil {
		t.Fatalf("uploader delete: %v", err)
	}
	if len(blobs.removed) != 1 {
		t.Fatalf("expected blob removal, got %v", blobs.removed)
	}
}

func TestOpenDocumentStreamsContent(t *testing.T) {
	fs := taskFixture(store.Task{ID: "tsk_1", ProjectID: "prj_1"})
	fs.getDocumentFn = func(_ context.Context, docID string) (store.Document, error) {
		return store.Document{ID: docID, TaskID: "tsk_1", FileName: "a.txt", ContentType: "text/plain", ObjectKey: "tasks/tsk_1/doc/a.txt"}, nil
	}
	blobs := newFakeBlobStore()
	blobs.objects["tasks/tsk_1/doc/a.txt"] = []byte("hello")
	svc := newTestService(fs)
	svc.blobs = blobs

	doc, reader, err := svc.OpenDocument(context.Background(), Session{UserID: "owner"}, "doc_1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "hello" || doc.FileName != "a.txt" {
		t.Fatalf("unexpected content %q for %q", content, doc.FileName)
	}
}
