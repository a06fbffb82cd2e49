package directory

import "time"

type Organization struct {
	ID        string
	Slug      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is the internal directory record for one person. Records are
// never hard-deleted: leaving the channel only flips IsActive so the
// row stays visible in history.
type Member struct {
	ID             string
	OrganizationID string
	ExternalID     string // chat-platform user id, "" until linked
	Email          string
	Name           string
	Role           string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const DefaultRole = "member"
