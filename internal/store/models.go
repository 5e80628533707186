package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Phone                 string
	AvatarURL             string
	EmailVerified         bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	ResetToken            string
	ResetExpiresAt        *time.Time
	ResetRequestCount     int
	ResetWindowStart      *time.Time
	Deleted               bool
	DeletedAt             *time.Time
	OriginalEmail         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UserRef is a denormalized (id, display name) pair carried on entities that
// reference users, so reads do not fan out into user lookups. ID is empty for
// anonymized actors; Name then holds the anonymization stamp.
type UserRef struct {
	ID   string
	Name string
}

type PersonalSpace struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

type Organization struct {
	ID        string
	Name      string
	Slug      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrgMember struct {
	OrgID    string
	UserID   string
	Role     string
	JoinedAt time.Time
}

type Workspace struct {
	ID        string
	Name      string
	Context   Context
	OwnerID   string
	CreatedBy string
	CreatedAt time.Time
}

type Project struct {
	ID          string
	WorkspaceID string
	Name        string
	Description string
	OwnerID     string
	OwnerName   string
	CreatedAt   time.Time
}

type Task struct {
	ID            string
	ProjectID     string
	Title         string
	Description   string
	Status        string
	Priority      string
	DueDate       *time.Time
	CreatedBy     string
	CreatedByName string
	Assignees     []UserRef
	Watchers      []UserRef
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Comment struct {
	ID         string
	TaskID     string
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// ReactionCount aggregates comment reactions per emoji. Each user holds at
// most one reaction per comment; switching emoji moves the user.
type ReactionCount struct {
	Emoji string
	Users []string
	Count int
}

// TaskActivity is an append-only audit record. Rows are never updated after
// insert, with the single exception of actor anonymization on account deletion.
type TaskActivity struct {
	ID              int64
	TaskID          string
	PerformedBy     string
	PerformedByName string
	Action          string
	Field           string
	OldValue        string
	NewValue        string
	Details         string
	Metadata        map[string]any
	CreatedAt       time.Time
}

type Notification struct {
	ID               string
	RecipientID      string
	SenderID         string
	SenderName       string
	Type             string
	Title            string
	Message          string
	RelatedTaskID    string
	RelatedCommentID string
	RelatedOrgID     string
	RelatedProjectID string
	Read             bool
	CreatedAt        time.Time
}

type Document struct {
	ID          string
	TaskID      string
	UploaderID  string
	FileName    string
	ObjectKey   string
	ContentType string
	Category    string
	SizeBytes   int64
	CreatedAt   time.Time
}

// EmailAvailability reports whether an email can be used for registration.
// PreviouslyDeleted is set when the address matches a soft-deleted user's
// original email; the caller decides the reuse policy.
type EmailAvailability struct {
	Available         bool
	PreviouslyDeleted bool
}

// DataImpact enumerates the records that would be anonymized (not deleted)
// when a user account is removed. Informational only; none of these block.
type DataImpact struct {
	ActiveTasks     int
	Comments        int
	CreatedProjects int
	TaskActivities  int
	OwnedWorkspaces int
}
