package domain

import "time"

// Message is a chat message persisted in the messages collection.
// org_id is the tenant boundary: every query that can reach a request
// path must filter on it. conversation_id maps to an Authorization
// Service group; no group metadata is stored here.
type Message struct {
	ID             string    `bson:"-" json:"id"`
	OrgID          string    `bson:"org_id" json:"org_id"`
	ConversationID string    `bson:"conversation_id" json:"conversation_id"`
	SenderID       string    `bson:"sender_id" json:"sender_id"`
	Content        string    `bson:"content" json:"content"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
	IsDeleted      bool      `bson:"is_deleted" json:"is_deleted"`
}

// AuthContext is the identity extracted from a verified access token.
// It is immutable and lives for a single request.
type AuthContext struct {
	UserID    string
	OrgID     string
	Scopes    []string
	Username  string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasScope reports whether the token carries the given scope.
func (a *AuthContext) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

const (
	PermissionRead  = "chat:read"
	PermissionWrite = "chat:write"
	PermissionAdmin = "chat:admin"
)

// MaxContentLength is the post-sanitization content limit.
const MaxContentLength = 10000
