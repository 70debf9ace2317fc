package recovery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/keyxmakerx/warden/internal/apperror"
)

// RecoveryService defines the recovery token state machine.
type RecoveryService interface {
	// Issue replaces any outstanding token for userID and returns the new PIN.
	Issue(ctx context.Context, userID string) (string, error)

	// VerifyPin exchanges a live PIN for its reset handle. The token stays
	// active, so the same PIN can be verified again within its window.
	VerifyPin(ctx context.Context, userID, pin string) (string, error)

	// ConsumeForReset returns the live token for handle. The caller must
	// call Deactivate after the new password has been stored.
	ConsumeForReset(ctx context.Context, handle string) (*Token, error)

	Deactivate(ctx context.Context, handle string) error
	SweepExpired(ctx context.Context) int64
}

// recoveryService implements RecoveryService.
type recoveryService struct {
	repo      TokenRepository
	limiter   AttemptLimiter
	ttl       time.Duration
	timeout   time.Duration
	now       func() time.Time
	newPin    func() (string, error)
	newHandle func() (string, error)
}

// NewRecoveryService creates a recovery service. ttl is how long an issued
// PIN stays valid; timeout bounds every store call.
func NewRecoveryService(repo TokenRepository, limiter AttemptLimiter, ttl, timeout time.Duration) RecoveryService {
	return &recoveryService{
		repo:      repo,
		limiter:   limiter,
		ttl:       ttl,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
		newPin:    generatePin,
		newHandle: generateHandle,
	}
}

var (
	errInvalidPin    = apperror.NewUnauthorized("invalid or expired PIN")
	errInvalidHandle = apperror.NewUnauthorized("invalid or expired recovery token")
)

// Issue generates a fresh PIN and handle for userID.
func (s *recoveryService) Issue(ctx context.Context, userID string) (string, error) {
	pin, err := s.newPin()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating pin: %w", err))
	}
	handle, err := s.newHandle()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating handle: %w", err))
	}

	now := s.now()
	t := &Token{
		UserID:    userID,
		Pin:       pin,
		Handle:    handle,
		ExpiresAt: now.Add(s.ttl),
		IsActive:  true,
		CreatedAt: now,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Replace(ctx, t); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("storing recovery token: %w", err))
	}

	// A new PIN gets a fresh attempt budget.
	if err := s.limiter.Reset(ctx, userID); err != nil {
		slog.Warn("failed to reset pin attempts", slog.String("user_id", userID), slog.Any("error", err))
	}

	slog.Info("recovery pin issued", slog.String("user_id", userID))
	return pin, nil
}

// VerifyPin checks pin against the user's live token and returns its handle.
func (s *recoveryService) VerifyPin(ctx context.Context, userID, pin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Check(ctx, userID); err != nil {
		if errors.Is(err, ErrTooManyAttempts) {
			return "", apperror.NewTooManyRequests("too many PIN attempts, request a new PIN")
		}
		slog.Warn("pin attempt check failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	if !validPin(pin) {
		s.recordFailure(ctx, userID)
		return "", errInvalidPin
	}

	t, err := s.repo.FindActiveByPin(ctx, userID, pin, s.now())
	if err != nil {
		if apperror.IsCode(err, http.StatusNotFound) {
			s.recordFailure(ctx, userID)
			return "", errInvalidPin
		}
		return "", apperror.NewInternal(fmt.Errorf("looking up recovery pin: %w", err))
	}

	if err := s.limiter.Reset(ctx, userID); err != nil {
		slog.Warn("failed to reset pin attempts", slog.String("user_id", userID), slog.Any("error", err))
	}
	return t.Handle, nil
}

// ConsumeForReset resolves a handle to its live token.
func (s *recoveryService) ConsumeForReset(ctx context.Context, handle string) (*Token, error) {
	if !validHandle(handle) {
		return nil, errInvalidHandle
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	t, err := s.repo.FindUsableByHandle(ctx, handle, s.now())
	if err != nil {
		if apperror.IsCode(err, http.StatusNotFound) {
			return nil, errInvalidHandle
		}
		return nil, apperror.NewInternal(fmt.Errorf("looking up recovery handle: %w", err))
	}
	return t, nil
}

// Deactivate retires the token for handle.
func (s *recoveryService) Deactivate(ctx context.Context, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Deactivate(ctx, handle); err != nil {
		return apperror.NewInternal(fmt.Errorf("deactivating recovery token: %w", err))
	}
	return nil
}

// SweepExpired deactivates expired recovery tokens. Errors are logged and
// reported as zero.
func (s *recoveryService) SweepExpired(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		slog.Error("recovery token sweep failed", slog.Any("error", err))
		return 0
	}
	return n
}

func (s *recoveryService) recordFailure(ctx context.Context, userID string) {
	if err := s.limiter.Fail(ctx, userID); err != nil {
		slog.Warn("failed to record pin attempt", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// generatePin returns a uniformly random 6-digit PIN, zero-padded.
func generatePin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", pinDigits, n.Int64()), nil
}

// generateHandle returns a random hex-encoded reset handle.
func generateHandle() (string, error) {
	b := make([]byte, handleBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validPin(pin string) bool {
	if len(pin) != pinDigits {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

func validHandle(handle string) bool {
	if len(handle) != handleBytes*2 {
		return false
	}
	_, err := hex.DecodeString(handle)
	return err == nil
}
