// Package sessions owns server-side login sessions. A session is a row in
// user_sessions keyed by an opaque random token that the browser carries in
// a cookie. The package creates, resolves, touches, and deactivates those
// rows, and encodes the token into the session cookie.
package sessions

import "time"

// tokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const tokenBytes = 32

// tokenLength is the hex-encoded length of a session token.
const tokenLength = tokenBytes * 2

// SessionData is the payload stored with a session and handed back on
// resolution. It is a fixed record rather than an open map so callers can
// rely on its shape.
type SessionData struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	LastLogin time.Time `json:"lastLogin"`
}

// ClientInfo is the optional request metadata captured when a session is
// created.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Record is a user_sessions row. Data holds the raw JSON payload.
type Record struct {
	Token     string
	UserID    string
	Data      string
	ExpiresAt time.Time
	IsActive  bool
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolvedRecord is a valid session row joined with the owning user's
// current email and last-login timestamp.
type ResolvedRecord struct {
	Data        string
	Email       string
	LastLoginAt *time.Time
}
