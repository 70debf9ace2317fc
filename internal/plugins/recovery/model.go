// Package recovery implements the password-recovery token engine. A token
// pairs a 6-digit PIN, delivered out of band by email, with an independent
// opaque handle. The PIN proves mailbox possession and is exchanged for the
// handle; only the handle is accepted by the final password reset.
//
// Lifecycle per user: none -> PIN issued -> PIN verified -> consumed by reset.
// Issuing a new PIN deactivates every earlier token for the same user.
package recovery

import "time"

// pinDigits is the number of decimal digits in a recovery PIN.
const pinDigits = 6

// handleBytes is the number of random bytes in a reset handle.
const handleBytes = 32

// Token is a recovery_tokens row.
type Token struct {
	ID        int64
	UserID    string
	Pin       string
	Handle    string
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Usable reports whether the token is active and unexpired at now.
func (t *Token) Usable(now time.Time) bool {
	return t.IsActive && t.ExpiresAt.After(now)
}
