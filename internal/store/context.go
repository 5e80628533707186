package store

import "fmt"

// ContextKind discriminates the scope a workspace belongs to.
type ContextKind string

const (
	ContextPersonal     ContextKind = "personal"
	ContextOrganization ContextKind = "organization"
)

// Context is the tagged union of workspace scopes: a personal space or an
// organization, never both. Resolve the referent through the accessor for the
// matching case rather than reading the raw id.
type Context struct {
	Kind            ContextKind
	personalSpaceID string
	organizationID  string
}

func PersonalContext(personalSpaceID string) Context {
	return Context{Kind: ContextPersonal, personalSpaceID: personalSpaceID}
}

func OrganizationContext(organizationID string) Context {
	return Context{Kind: ContextOrganization, organizationID: organizationID}
}

// PersonalSpaceID returns the personal space id when the context is personal.
func (c Context) PersonalSpaceID() (string, bool) {
	if c.Kind != ContextPersonal {
		return "", false
	}
	return c.personalSpaceID, true
}

// OrganizationID returns the organization id when the context is organizational.
func (c Context) OrganizationID() (string, bool) {
	if c.Kind != ContextOrganization {
		return "", false
	}
	return c.organizationID, true
}

// ReferentID returns the raw context id for persistence.
func (c Context) ReferentID() string {
	switch c.Kind {
	case ContextPersonal:
		return c.personalSpaceID
	case ContextOrganization:
		return c.organizationID
	default:
		return ""
	}
}

// ParseContext rebuilds the union from persisted (kind, id) columns.
func ParseContext(kind, referentID string) (Context, error) {
	switch ContextKind(kind) {
	case ContextPersonal:
		return PersonalContext(referentID), nil
	case ContextOrganization:
		return OrganizationContext(referentID), nil
	default:
		return Context{}, fmt.Errorf("unknown context kind %q", kind)
	}
}
