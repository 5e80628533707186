package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskloom/api/internal/auth"
	"taskloom/api/internal/authpw"
	"taskloom/api/internal/config"
	"taskloom/api/internal/email"
	"taskloom/api/internal/files"
	"taskloom/api/internal/notify"
	"taskloom/api/internal/search"
	"taskloom/api/internal/session"
	"taskloom/api/internal/store"
	"taskloom/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateOrganizationInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type CreateWorkspaceInput struct {
	Name           string `json:"name"`
	ContextType    string `json:"contextType"`
	OrganizationID string `json:"organizationId"`
}

type CreateProjectInput struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateTaskInput struct {
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Assignees   []string   `json:"assignees"`
}

// UpdateTaskInput carries the full post-update shape of the tracked fields.
// Nil pointers mean "leave unchanged"; DueDateSet distinguishes clearing the
// due date from not touching it.
type UpdateTaskInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	DueDateSet  bool       `json:"-"`
	Assignees   *[]string  `json:"assignees"`
}

type CommentInput struct {
	Body string `json:"body"`
}

type ReactionInput struct {
	Emoji string `json:"emoji"`
}

type TransferOwnershipInput struct {
	ToUserID string `json:"toUserId"`
}

var allowedTaskStatuses = map[string]struct{}{
	"todo":        {},
	"in_progress": {},
	"done":        {},
}

var allowedTaskPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"urgent": {},
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	SoftDeleteUser(ctx context.Context, userID string) (bool, error)

	CreateOrganization(ctx context.Context, org store.Organization) error
	GetOrganization(ctx context.Context, orgID string) (store.Organization, error)
	GetOrganizationMember(ctx context.Context, orgID, userID string) (store.OrgMember, error)
	ListOrganizationMembers(ctx context.Context, orgID string) ([]store.OrgMember, error)
	AddOrganizationMember(ctx context.Context, orgID, userID, role string) (bool, error)
	UpdateOrganizationMemberRole(ctx context.Context, orgID, userID, role string) (bool, error)
	RemoveOrganizationMember(ctx context.Context, orgID, userID string) error
	ListOwnedOrganizations(ctx context.Context, userID string) ([]store.Organization, error)
	CountOwnedOrganizations(ctx context.Context, userID string) (int, error)
	TransferOrganizationOwnership(ctx context.Context, orgID, fromUserID, toUserID string) (bool, error)
	RemoveUserFromAllOrganizations(ctx context.Context, userID string) error
	GetPersonalSpace(ctx context.Context, userID string) (store.PersonalSpace, error)
	DeletePersonalSpaceFor(ctx context.Context, userID string) error

	CreateWorkspace(ctx context.Context, workspace store.Workspace) error
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	WorkspaceForProject(ctx context.Context, projectID string) (store.Workspace, error)
	WorkspaceForTask(ctx context.Context, taskID string) (store.Workspace, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	AddWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]string, error)
	CountWorkspacesOwnedBy(ctx context.Context, userID string) (int, error)
	DeleteWorkspacesCreatedBy(ctx context.Context, userID string) error
	RemoveUserFromAllWorkspaces(ctx context.Context, userID string) error

	CreateProject(ctx context.Context, project store.Project) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	AddProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	CountProjectsCreatedBy(ctx context.Context, userID string) (int, error)
	AnonymizeProjectsBy(ctx context.Context, userID, stamp string) error
	RemoveUserFromAllProjects(ctx context.Context, userID string) error

	CreateTask(ctx context.Context, task store.Task) error
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	ListProjectTasks(ctx context.Context, projectID string) ([]store.Task, error)
	UpdateTaskFields(ctx context.Context, taskID, title, description, status, priority string, dueDate *time.Time) error
	DeleteTask(ctx context.Context, taskID string) (bool, error)
	AddTaskAssignee(ctx context.Context, taskID, userID string) (bool, error)
	RemoveTaskAssignee(ctx context.Context, taskID, userID string) error
	AddTaskWatcher(ctx context.Context, taskID, userID string) (bool, error)
	RemoveTaskWatcher(ctx context.Context, taskID, userID string) error
	CountActiveTasksAssignedTo(ctx context.Context, userID string) (int, error)
	AnonymizeTasksBy(ctx context.Context, userID, stamp string) error
	RemoveUserFromAllTasks(ctx context.Context, userID string) error

	CreateComment(ctx context.Context, comment store.Comment) error
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	ListTaskComments(ctx context.Context, taskID string) ([]store.Comment, error)
	UpsertCommentReaction(ctx context.Context, commentID, userID, emoji string) error
	RemoveCommentReaction(ctx context.Context, commentID, userID string) error
	ListCommentReactions(ctx context.Context, commentID string) ([]store.ReactionCount, error)
	CountCommentsBy(ctx context.Context, userID string) (int, error)
	AnonymizeCommentsBy(ctx context.Context, userID, stamp string) error

	InsertTaskActivity(ctx context.Context, activity store.TaskActivity) error
	ListTaskActivities(ctx context.Context, taskID string) ([]store.TaskActivity, error)
	CountActivitiesBy(ctx context.Context, userID string) (int, error)
	AnonymizeActivitiesBy(ctx context.Context, userID, stamp string) error

	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, recipientID string) (bool, error)
	CountUnreadNotifications(ctx context.Context, recipientID string) (int, error)
	DeleteNotificationsForRecipient(ctx context.Context, recipientID string) error
	AnonymizeNotificationsFrom(ctx context.Context, senderID, stamp string) error

	InsertDocument(ctx context.Context, doc store.Document) error
	GetDocument(ctx context.Context, docID string) (store.Document, error)
	ListTaskDocuments(ctx context.Context, taskID string) ([]store.Document, error)
	DeleteDocument(ctx context.Context, docID string) (bool, error)

	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	emails   *email.Service
	notifier *notify.Engine
	search   *search.Service
	blobs    files.ObjectStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, authSvc *authpw.Service, emails *email.Service, notifier *notify.Engine, searchSvc *search.Service, blobs files.ObjectStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authSvc,
		emails:   emails,
		notifier: notifier,
		search:   searchSvc,
		blobs:    blobs,
	}
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.emails != nil && s.emails.IsConfigured()
}

// SendWelcomeEmail is fired after the winning email verification. A failure
// here is non-fatal; the account is already verified.
func (s *Service) SendWelcomeEmail(to, userName string) {
	if !s.SMTPConfigured() {
		return
	}
	if err := s.emails.SendWelcomeEmail(to, userName, s.cfg.AppBaseURL); err != nil {
		log.Printf("email: welcome to %s: %v", to, err)
	}
}

// SendVerificationEmail mails the signup verification link. Best effort;
// the caller already has the token for the dev bypass path.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.AppBaseURL, token)
	if err := s.emails.SendVerificationEmail(to, userName, verifyURL); err != nil {
		log.Printf("email: verification to %s: %v", to, err)
	}
}

// SendPasswordResetEmail mails the reset link. Unlike the welcome and
// verification mails this one is security critical: a send failure propagates
// so the caller can report it instead of claiming the mail went out.
func (s *Service) SendPasswordResetEmail(to, token string) error {
	if !s.SMTPConfigured() || token == "" {
		return nil
	}
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.AppBaseURL, token)
	if err := s.emails.SendPasswordResetEmail(to, "", resetURL); err != nil {
		log.Printf("email: password reset to %s: %v", to, err)
		return fmt.Errorf("send password reset email: %w", err)
	}
	return nil
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if user.Deleted {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, user.ID)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if user.Deleted {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) actor(session Session) notify.Actor {
	return notify.Actor{ID: session.UserID, Name: session.UserName}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}
