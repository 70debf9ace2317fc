package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"

	"github.com/keyxmakerx/warden/internal/apperror"
	"github.com/keyxmakerx/warden/internal/plugins/recovery"
	"github.com/keyxmakerx/warden/internal/plugins/sessions"
	"github.com/keyxmakerx/warden/internal/plugins/smtp"
	"github.com/keyxmakerx/warden/internal/sanitize"
)

// Messages shown to clients for credential failures. The login message is
// the same for an unknown email and a wrong password.
const (
	msgInvalidCredentials = "invalid email or password"
	msgAccountDisabled    = "this account is disabled"
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository directly.
type AuthService interface {
	Signup(ctx context.Context, input SignupInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*sessions.SessionData, bool)

	SendRecoveryPin(ctx context.Context, email string) error
	VerifyRecoveryPin(ctx context.Context, email, pin string) (string, error)
	ResetPassword(ctx context.Context, input ResetInput) (*AuthResult, error)

	Profile(ctx context.Context, userID string) (*User, *Profile, error)
}

// authService implements AuthService.
type authService struct {
	repo     UserRepository
	hasher   *Hasher
	sessions sessions.SessionService
	recovery recovery.RecoveryService
	mail     smtp.MailService

	recoveryTTL time.Duration
	timeout     time.Duration
	now         func() time.Time
}

// ServiceConfig holds the tunables of the auth service.
type ServiceConfig struct {
	// RecoveryTTL is shown to users in the PIN email.
	RecoveryTTL time.Duration

	// StoreTimeout bounds every user repository call.
	StoreTimeout time.Duration
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(
	repo UserRepository,
	hasher *Hasher,
	sessionSvc sessions.SessionService,
	recoverySvc recovery.RecoveryService,
	mail smtp.MailService,
	cfg ServiceConfig,
) AuthService {
	return &authService{
		repo:        repo,
		hasher:      hasher,
		sessions:    sessionSvc,
		recovery:    recoverySvc,
		mail:        mail,
		recoveryTTL: cfg.RecoveryTTL,
		timeout:     cfg.StoreTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// normalizeEmail lower-cases and trims an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// storeCtx bounds a single repository call.
func (s *authService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Signup creates a user and profile atomically, sends a welcome email, and
// signs the new user in.
func (s *authService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	email := normalizeEmail(input.Email)
	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	// Check if email is already taken before doing expensive hashing.
	sctx, cancel := s.storeCtx(ctx)
	exists, err := s.repo.EmailExists(sctx, email)
	cancel()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	now := s.now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		LastLoginAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &Profile{
		UserID:    user.ID,
		Gender:    orDefault(input.Gender, defaultGender),
		LastName:  optional(sanitize.Text(input.LastName)),
		FirstName: optional(sanitize.Text(input.FirstName)),
		Phone:     optional(input.Phone),
		Mobile:    optional(input.Mobile),
		Language:  orDefault(input.Language, defaultLanguage),
		IsActive:  true,
		UpdatedAt: now,
	}

	sctx, cancel = s.storeCtx(ctx)
	err = s.repo.CreateWithProfile(sctx, user, profile)
	cancel()
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	// The account exists at this point; a failed welcome email is not fatal.
	if err := s.send(ctx, user.Email, "Welcome", smtp.WelcomeEmail(profile.DisplayName())); err != nil {
		slog.Warn("failed to send welcome email",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	return s.startSession(ctx, user, profile, now, input.Client)
}

// Login authenticates a user by email and password. A correct legacy
// plaintext password is rewritten as a bcrypt hash in the same transaction
// that records the login.
func (s *authService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	sctx, cancel := s.storeCtx(ctx)
	user, err := s.repo.FindByEmail(sctx, normalizeEmail(input.Email))
	cancel()
	if err != nil {
		// Don't reveal whether the email exists -- use generic message and
		// spend the same bcrypt work a wrong password would.
		if apperror.IsCode(err, http.StatusNotFound) {
			s.hasher.Burn(input.Password)
			return nil, apperror.NewUnauthorized(msgInvalidCredentials)
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !user.IsActive {
		return nil, apperror.NewUnauthorized(msgAccountDisabled)
	}

	verification := s.hasher.Verify(input.Password, user.PasswordHash)
	if !verification.Matches() {
		return nil, apperror.NewUnauthorized(msgInvalidCredentials)
	}

	var upgraded string
	if verification.NeedsUpgrade() {
		upgraded, err = s.hasher.Hash(input.Password)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
	}

	now := s.now()
	sctx, cancel = s.storeCtx(ctx)
	err = s.repo.RecordLogin(sctx, user.ID, user.PasswordHash, upgraded, now)
	cancel()
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("recording login: %w", err))
	}

	if upgraded != "" {
		user.PasswordHash = upgraded
		slog.Info("legacy password upgraded", slog.String("user_id", user.ID))
	}
	user.LastLoginAt = &now

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return s.startSession(ctx, user, nil, now, input.Client)
}

// Logout ends the session identified by token.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return apperror.NewUnauthorized("no active session")
	}
	return s.sessions.Invalidate(ctx, token)
}

// Me resolves the caller's session.
func (s *authService) Me(ctx context.Context, token string) (*sessions.SessionData, bool) {
	if token == "" {
		return nil, false
	}
	return s.sessions.Resolve(ctx, token)
}

// SendRecoveryPin issues a new recovery PIN for email and mails it. Any
// earlier PIN for the same user stops working.
func (s *authService) SendRecoveryPin(ctx context.Context, email string) error {
	sctx, cancel := s.storeCtx(ctx)
	user, err := s.repo.FindByEmail(sctx, normalizeEmail(email))
	cancel()
	if err != nil {
		if apperror.IsCode(err, http.StatusNotFound) {
			return apperror.NewNotFound("no account exists for this email")
		}
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if !user.IsActive {
		return apperror.NewUnauthorized(msgAccountDisabled)
	}

	pin, err := s.recovery.Issue(ctx, user.ID)
	if err != nil {
		return err
	}

	if err := s.send(ctx, user.Email, "Password recovery", smtp.RecoveryPinEmail(pin, s.recoveryTTL)); err != nil {
		return apperror.NewInternal(fmt.Errorf("sending recovery email: %w", err))
	}
	return nil
}

// VerifyRecoveryPin exchanges a PIN for the reset token.
func (s *authService) VerifyRecoveryPin(ctx context.Context, email, pin string) (string, error) {
	sctx, cancel := s.storeCtx(ctx)
	user, err := s.repo.FindByEmail(sctx, normalizeEmail(email))
	cancel()
	if err != nil {
		if apperror.IsCode(err, http.StatusNotFound) {
			return "", apperror.NewNotFound("invalid user")
		}
		return "", apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if !user.IsActive {
		return "", apperror.NewNotFound("invalid user")
	}

	return s.recovery.VerifyPin(ctx, user.ID, strings.TrimSpace(pin))
}

// ResetPassword stores a new password for the owner of a verified reset
// token, retires the token, ends every other session, and signs the user in.
func (s *authService) ResetPassword(ctx context.Context, input ResetInput) (*AuthResult, error) {
	if err := ValidatePassword(input.NewPassword); err != nil {
		return nil, err
	}

	token, err := s.recovery.ConsumeForReset(ctx, input.Handle)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeCtx(ctx)
	user, err := s.repo.FindByID(sctx, token.UserID)
	cancel()
	if err != nil {
		if apperror.IsCode(err, http.StatusNotFound) {
			return nil, apperror.NewUnauthorized("invalid or expired recovery token")
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if s.hasher.Verify(input.NewPassword, user.PasswordHash).Matches() {
		return nil, apperror.NewValidation("the new password must differ from the current one")
	}

	hash, err := s.hasher.Hash(input.NewPassword)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	now := s.now()
	sctx, cancel = s.storeCtx(ctx)
	err = s.repo.UpdatePassword(sctx, user.ID, hash, now)
	cancel()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	// Only retire the token once the new password is stored.
	if err := s.recovery.Deactivate(ctx, input.Handle); err != nil {
		return nil, err
	}
	if err := s.sessions.InvalidateAll(ctx, user.ID); err != nil {
		return nil, err
	}

	user.PasswordHash = hash
	user.LastLoginAt = &now

	slog.Info("password reset", slog.String("user_id", user.ID))

	return s.startSession(ctx, user, nil, now, input.Client)
}

// Profile returns the user and their profile. A user without a profile row
// yields a nil profile.
func (s *authService) Profile(ctx context.Context, userID string) (*User, *Profile, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.repo.FindByID(sctx, userID)
	if err != nil {
		if apperror.IsCode(err, http.StatusNotFound) {
			return nil, nil, err
		}
		return nil, nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	profile, err := s.repo.FindProfile(sctx, userID)
	if err != nil {
		if !apperror.IsCode(err, http.StatusNotFound) {
			return nil, nil, apperror.NewInternal(fmt.Errorf("finding profile: %w", err))
		}
		profile = nil
	}
	return user, profile, nil
}

// startSession issues a session for user and packages the login result.
func (s *authService) startSession(ctx context.Context, user *User, profile *Profile, now time.Time, client ClientMeta) (*AuthResult, error) {
	token, err := s.sessions.Create(ctx, user.ID,
		sessions.SessionData{Email: user.Email, LastLogin: now},
		sessions.ClientInfo{IP: client.IP, UserAgent: client.UserAgent},
	)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user, Profile: profile, LastLogin: now}, nil
}

// send renders and mails a single email.
func (s *authService) send(ctx context.Context, to, subject string, body templ.Component) error {
	email, err := smtp.Render(ctx, subject, body)
	if err != nil {
		return err
	}
	return s.mail.SendMail(ctx, []string{to}, email.Subject, email.HTML)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
