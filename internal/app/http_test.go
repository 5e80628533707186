package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taskloom/api/internal/authpw"
	"taskloom/api/internal/email"
	"taskloom/api/internal/store"
)

// authStoreStub backs the authpw service in HTTP tests with an in-memory
// user table keyed by email.
type authStoreStub struct {
	byEmail       map[string]store.User
	created       []store.User
	spaces        []store.PersonalSpace
	countResetErr error
}

func newAuthStoreStub() *authStoreStub {
	return &authStoreStub{byEmail: map[string]store.User{}}
}

func (s *authStoreStub) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}
func (s *authStoreStub) GetUserByID(_ context.Context, id string) (store.User, error) {
	for _, user := range s.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}
func (s *authStoreStub) HasDeletedUserWithOriginalEmail(context.Context, string) (bool, error) {
	return false, nil
}
func (s *authStoreStub) CreateUser(_ context.Context, user store.User) error {
	s.byEmail[user.Email] = user
	s.created = append(s.created, user)
	return nil
}
func (s *authStoreStub) CreatePersonalSpace(_ context.Context, space store.PersonalSpace) error {
	s.spaces = append(s.spaces, space)
	return nil
}
func (s *authStoreStub) UpdateUserVerificationToken(context.Context, string, string, time.Time) error {
	return nil
}
func (s *authStoreStub) VerifyUserEmail(_ context.Context, token string) (store.User, bool, error) {
	for email, user := range s.byEmail {
		if user.VerificationToken == token && !user.EmailVerified {
			user.EmailVerified = true
			s.byEmail[email] = user
			return user, true, nil
		}
	}
	return store.User{}, false, sql.ErrNoRows
}
func (s *authStoreStub) UpdateUserPassword(context.Context, string, string) error { return nil }
func (s *authStoreStub) CountResetRequest(context.Context, string) (int, error) {
	if s.countResetErr != nil {
		return 0, s.countResetErr
	}
	return 0, nil
}
func (s *authStoreStub) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}
func (s *authStoreStub) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (s *authStoreStub) MarkPasswordResetUsed(context.Context, string) error { return nil }

func newTestHTTPServer(fs *fakeStore, authStore *authStoreStub) *HTTPServer {
	svc := newTestService(fs)
	if authStore != nil {
		svc.authpw = authpw.NewService(authStore, "test-secret")
	}
	return NewHTTPServer(svc, "*")
}

func postJSON(t *testing.T, server *HTTPServer, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodePayload(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestSignUpDevBypassReturnsVerificationToken(t *testing.T) {
	authStore := newAuthStoreStub()
	server := newTestHTTPServer(&fakeStore{}, authStore)

	rr := postJSON(t, server, "/api/auth/signup", `{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := decodePayload(t, rr)
	if token, _ := payload["devVerificationToken"].(string); token == "" {
		t.Fatalf("expected dev verification token without SMTP, got %v", payload)
	}
	if len(authStore.spaces) != 1 {
		t.Fatalf("expected a personal space per signup, got %d", len(authStore.spaces))
	}
}

func TestSignUpDuplicateEmailConflicts(t *testing.T) {
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{ID: "user-1", Email: "avery@example.com"}
	server := newTestHTTPServer(&fakeStore{}, authStore)

	rr := postJSON(t, server, "/api/auth/signup", `{"email":"avery@example.com","password":"hunter2hunter2","displayName":"Avery"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("expected EMAIL_EXISTS, got %v", payload["code"])
	}
}

func TestSignInReturnsSessionContract(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{
		ID:            "user-1",
		DisplayName:   "Avery",
		Email:         "avery@example.com",
		PasswordHash:  string(hash),
		EmailVerified: true,
	}
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, DisplayName: "Avery"}, nil
		},
	}
	server := newTestHTTPServer(fs, authStore)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := decodePayload(t, rr)
	if token, _ := payload["accessToken"].(string); token == "" {
		t.Fatalf("expected accessToken, got %v", payload)
	}
	if refresh, _ := payload["refreshToken"].(string); refresh == "" {
		t.Fatalf("expected refreshToken, got %v", payload)
	}
	if payload["userId"] != "user-1" || payload["userName"] != "Avery" {
		t.Fatalf("unexpected identity: %v", payload)
	}
	if _, ok := payload["role"]; ok {
		t.Fatalf("roles are per-organization, none belongs in the session payload")
	}
}

func TestSignInUnverifiedEmailForbidden(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{
		ID:           "user-1",
		Email:        "avery@example.com",
		PasswordHash: string(hash),
	}
	server := newTestHTTPServer(&fakeStore{}, authStore)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"hunter2hunter2"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("expected EMAIL_NOT_VERIFIED, got %v", payload["code"])
	}
}

func TestSignInWrongPasswordUnauthorized(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{
		ID:            "user-1",
		Email:         "avery@example.com",
		PasswordHash:  string(hash),
		EmailVerified: true,
	}
	server := newTestHTTPServer(&fakeStore{}, authStore)

	rr := postJSON(t, server, "/api/auth/signin", `{"email":"avery@example.com","password":"wrong"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestProtectedRouteWithoutBearerUnauthorized(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", payload["code"])
	}
}

func TestSessionEndpointWithoutTokenIsAnonymous(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload := decodePayload(t, rr); payload["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %v", payload)
	}
}

func TestSessionEndpointResolvesBearer(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	session, err := svc.CreateSession(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	payload := decodePayload(t, rr)
	if payload["authenticated"] != true || payload["userId"] != "user-1" {
		t.Fatalf("expected resolved session, got %v", payload)
	}
}

func TestRefreshEndpointIssuesNewSession(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	session, err := svc.CreateSession(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rr := postJSON(t, server, "/api/auth/refresh", `{"refreshToken":"`+session.RefreshToken+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodePayload(t, rr)
	if payload["refreshToken"] == session.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}

	rr = postJSON(t, server, "/api/auth/refresh", `{"refreshToken":"`+session.RefreshToken+`"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused token rejected with 401, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestHTTPServer(&fakeStore{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := &fakeStore{
		pingFn: func(context.Context) error { return sql.ErrConnDone },
	}
	server := newTestHTTPServer(fs, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	payload := decodePayload(t, rr)
	if payload["status"] != "not_ready" {
		t.Fatalf("expected not_ready, got %v", payload["status"])
	}
}

func TestRequestPasswordResetStoreFailureIsNotSilent(t *testing.T) {
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{ID: "user-1", Email: "avery@example.com", EmailVerified: true}
	authStore.countResetErr = sql.ErrConnDone
	server := newTestHTTPServer(&fakeStore{}, authStore)

	rr := postJSON(t, server, "/api/auth/reset-password/request", `{"email":"avery@example.com"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for store failure, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "SERVER_ERROR" {
		t.Fatalf("expected SERVER_ERROR, got %v", payload["code"])
	}
}

func TestRequestPasswordResetMailFailurePropagates(t *testing.T) {
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{ID: "user-1", Email: "avery@example.com", EmailVerified: true}

	svc := newTestService(&fakeStore{})
	svc.authpw = authpw.NewService(authStore, "test-secret")
	// Nothing listens on port 1; the SMTP dial fails immediately.
	svc.emails = email.NewService(email.Config{Host: "127.0.0.1", Port: "1", From: "noreply@taskloom.test"})
	server := NewHTTPServer(svc, "*")

	rr := postJSON(t, server, "/api/auth/reset-password/request", `{"email":"avery@example.com"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the reset mail cannot be sent, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["code"] != "EMAIL_DELIVERY_FAILED" {
		t.Fatalf("expected EMAIL_DELIVERY_FAILED, got %v", payload["code"])
	}
}

func TestRequestPasswordResetUnknownEmailStaysQuiet(t *testing.T) {
	authStore := newAuthStoreStub()

	svc := newTestService(&fakeStore{})
	svc.authpw = authpw.NewService(authStore, "test-secret")
	svc.emails = email.NewService(email.Config{Host: "127.0.0.1", Port: "1", From: "noreply@taskloom.test"})
	server := NewHTTPServer(svc, "*")

	// No account, no token, no send attempt; the response never reveals it.
	rr := postJSON(t, server, "/api/auth/reset-password/request", `{"email":"ghost@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected enumeration-safe 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if payload := decodePayload(t, rr); payload["devResetToken"] != nil {
		t.Fatalf("reset token leaked for unknown account: %v", payload)
	}
}

func TestVerifyEmailEndpointConsumesToken(t *testing.T) {
	authStore := newAuthStoreStub()
	authStore.byEmail["avery@example.com"] = store.User{
		ID:                "user-1",
		Email:             "avery@example.com",
		VerificationToken: "tok-123",
	}
	server := newTestHTTPServer(&fakeStore{}, authStore)

	rr := postJSON(t, server, "/api/auth/verify-email", `{"token":"tok-123"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = postJSON(t, server, "/api/auth/verify-email", `{"token":"tok-bogus"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad token, got %d", rr.Code)
	}
}

func TestUpdateTaskEndpointDistinguishesNullDueDate(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	task := store.Task{ID: "tsk_1", ProjectID: "prj_1", Title: "T", Status: "todo", Priority: "low", DueDate: &due}
	fs := taskFixture(task)
	var savedDue *time.Time
	dueSaved := false
	fs.updateTaskFieldsFn = func(_ context.Context, _, _, _, _, _ string, dueDate *time.Time) error {
		savedDue = dueDate
		dueSaved = true
		return nil
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	session, err := svc.CreateSession(context.Background(), "owner")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/tsk_1", bytes.NewBufferString(`{"dueDate":null}`))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !dueSaved || savedDue != nil {
		t.Fatalf("expected explicit null to clear the due date, saved=%v due=%v", dueSaved, savedDue)
	}

	// Omitting the field entirely leaves it untouched.
	dueSaved = false
	req = httptest.NewRequest(http.MethodPut, "/api/tasks/tsk_1", bytes.NewBufferString(`{"title":"T2"}`))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !dueSaved || savedDue == nil || !savedDue.Equal(due) {
		t.Fatalf("expected omitted dueDate preserved, saved=%v due=%v", dueSaved, savedDue)
	}
}
