package session

import (
	"context"
	"time"
)

// Session represents an authenticated browser session. MemberID may be
// empty: a user can authenticate before the directory sync has created
// a record for them.
type Session struct {
	SessionID  string    // unique session identifier
	MemberID   string    // references members.id, "" when no record exists yet
	ExternalID string    // chat-platform user id from the verified identity
	OrgSlug    string    // organization the login was initiated for
	CreatedAt  time.Time
	ExpiresAt  time.Time // absolute expiry time
}

// Store defines how sessions are stored and retrieved.
// Implementations (e.g., Redis) must remain stateless and opaque.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}
