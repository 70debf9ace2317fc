package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/keyxmakerx/warden/internal/apperror"
)

// SessionService defines the business logic contract for login sessions.
// Resolve never returns an error: every failure collapses to "invalid" so
// callers cannot tell an unknown token from a store outage.
type SessionService interface {
	Create(ctx context.Context, userID string, data SessionData, client ClientInfo) (string, error)
	Resolve(ctx context.Context, token string) (*SessionData, bool)
	Invalidate(ctx context.Context, token string) error
	InvalidateAll(ctx context.Context, userID string) error
	SweepExpired(ctx context.Context) int64
}

// sessionService implements SessionService on top of a SessionRepository.
type sessionService struct {
	repo    SessionRepository
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewSessionService creates a session service. ttl is the fixed lifetime of
// a session from issuance; timeout bounds every store call.
func NewSessionService(repo SessionRepository, ttl, timeout time.Duration) SessionService {
	return &sessionService{
		repo:    repo,
		ttl:     ttl,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a new session for userID and returns its token.
func (s *sessionService) Create(ctx context.Context, userID string, data SessionData, client ClientInfo) (string, error) {
	data.UserID = userID
	payload, err := json.Marshal(data)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("encoding session payload: %w", err))
	}

	token, err := generateToken()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating session token: %w", err))
	}

	now := s.now()
	rec := &Record{
		Token:     token,
		UserID:    userID,
		Data:      string(payload),
		ExpiresAt: now.Add(s.ttl),
		IsActive:  true,
		IPAddress: optional(client.IP),
		UserAgent: optional(client.UserAgent),
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	slog.Info("session created", slog.String("user_id", userID))
	return token, nil
}

// Resolve returns the payload for a valid session and refreshes its touch
// timestamp. Malformed tokens are rejected before the store is consulted.
func (s *sessionService) Resolve(ctx context.Context, token string) (*SessionData, bool) {
	if !wellFormed(token) {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	rec, err := s.repo.FindValid(ctx, token, now)
	if err != nil {
		if !apperror.IsCode(err, http.StatusNotFound) {
			slog.Warn("session lookup failed", slog.Any("error", err))
		}
		return nil, false
	}

	var data SessionData
	if err := json.Unmarshal([]byte(rec.Data), &data); err != nil || data.UserID == "" {
		slog.Warn("discarding session with malformed payload")
		return nil, false
	}

	// The users row is the source of truth for mutable identity fields.
	data.Email = rec.Email
	if rec.LastLoginAt != nil {
		data.LastLogin = *rec.LastLoginAt
	}

	if err := s.repo.Touch(ctx, token, now); err != nil {
		slog.Warn("session touch failed", slog.String("user_id", data.UserID), slog.Any("error", err))
		return nil, false
	}
	return &data, true
}

// Invalidate deactivates a single session. Unknown and already inactive
// tokens succeed.
func (s *sessionService) Invalidate(ctx context.Context, token string) error {
	if !wellFormed(token) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Deactivate(ctx, token); err != nil {
		return apperror.NewInternal(fmt.Errorf("invalidating session: %w", err))
	}
	return nil
}

// InvalidateAll deactivates every active session owned by userID.
func (s *sessionService) InvalidateAll(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.repo.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("invalidating user sessions: %w", err))
	}
	slog.Info("user sessions invalidated", slog.String("user_id", userID), slog.Int64("count", n))
	return nil
}

// SweepExpired deactivates every session past its expiry and returns how
// many rows changed. Errors are logged and reported as zero.
func (s *sessionService) SweepExpired(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		slog.Error("session sweep failed", slog.Any("error", err))
		return 0
	}
	return n
}

// generateToken creates a cryptographically random hex-encoded token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// wellFormed reports whether token has the exact shape generateToken emits.
func wellFormed(token string) bool {
	if len(token) != tokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
