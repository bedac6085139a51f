package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/logger"
	"github.com/avralex/authgate/internal/infra/mailer"
	"github.com/avralex/authgate/internal/infra/security"
	"github.com/avralex/authgate/internal/repository"
)

// DefaultRole is granted to every freshly registered account.
const DefaultRole = "User"

// AuthService coordinates registration, credential verification, email
// confirmation, and session lifecycle on top of the policy objects.
type AuthService struct {
	users     port.UserRepository
	lockout   *LockoutPolicy
	issuer    *TokenIssuer
	sessions  *SessionManager
	passwords *security.PasswordValidator
	mail      port.EmailDispatcher
	events    port.EventPublisher
	logger    *zap.Logger
	baseURL   string
	// decoyHash is verified against when the email matches no account, so the
	// unknown-email path costs the same as a wrong-password path.
	decoyHash string
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	users port.UserRepository,
	lockout *LockoutPolicy,
	issuer *TokenIssuer,
	sessions *SessionManager,
	passwords *security.PasswordValidator,
	mail port.EmailDispatcher,
	events port.EventPublisher,
	log *zap.Logger,
	baseURL string,
) (*AuthService, error) {
	decoy, err := security.HashPassword(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare decoy hash: %w", err)
	}

	return &AuthService{
		users:     users,
		lockout:   lockout,
		issuer:    issuer,
		sessions:  sessions,
		passwords: passwords,
		mail:      mail,
		events:    events,
		logger:    log,
		baseURL:   baseURL,
		decoyHash: decoy,
		now:       time.Now,
	}, nil
}

// Register creates an account and sends a confirmation link. The account
// starts unconfirmed and cannot authenticate until the link is redeemed.
// Email delivery and event publication failures are logged, never surfaced;
// the account row is the source of truth.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if err := s.passwords.Validate(password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		PasswordAlgo: "argon2id",
		RegisteredAt: now,
	}

	if err := s.users.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if err := s.users.AssignRole(ctx, account.ID, DefaultRole); err != nil {
		return nil, fmt.Errorf("assign default role: %w", err)
	}

	raw, err := s.issuer.Issue(ctx, account.ID, domain.TokenPurposeEmailConfirmation)
	if err != nil {
		return nil, fmt.Errorf("issue confirmation token: %w", err)
	}

	link := mailer.ConfirmationLink(s.baseURL, account.ID, raw)
	if err := s.mail.SendConfirmationLink(ctx, account.Email, link); err != nil {
		s.logger.Warn("confirmation email dispatch failed",
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.Error(err))
	}

	s.publishRegistered(ctx, account)

	return &account, nil
}

// Authenticate verifies credentials and, on success, issues a session. The
// failure paths are deliberately uniform: unknown email, wrong password, and
// unconfirmed-after-verification all run a hash comparison, and locked
// accounts still burn a verification whose result is discarded.
func (s *AuthService) Authenticate(ctx context.Context, email, password string, persistent bool) (string, *domain.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a verification against the decoy so response timing does
			// not reveal whether the email exists.
			_, _ = security.VerifyPassword(password, s.decoyHash)
			s.publishLoginFailed(ctx, "", 0)
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup account: %w", err)
	}

	if until, locked := s.lockout.CheckLocked(account); locked {
		_, _ = security.VerifyPassword(password, account.PasswordHash)
		return "", nil, &LockedOutError{Until: until}
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		count, lockedUntil, failErr := s.lockout.RecordFailure(ctx, account.ID)
		if failErr != nil {
			s.logger.Error("lockout bookkeeping failed",
				zap.String("user_id", account.ID),
				zap.Error(failErr))
		}
		s.publishLoginFailed(ctx, account.ID, count)
		if lockedUntil != nil && lockedUntil.After(s.now()) {
			s.publishAccountLocked(ctx, account.ID, *lockedUntil)
			return "", nil, &LockedOutError{Until: *lockedUntil}
		}
		return "", nil, ErrInvalidCredentials
	}

	if !account.EmailConfirmed {
		return "", nil, ErrNotConfirmed
	}

	if err := s.lockout.RecordSuccess(ctx, account.ID); err != nil {
		return "", nil, err
	}

	roles, err := s.users.GetRoles(ctx, account.ID)
	if err != nil {
		return "", nil, fmt.Errorf("load roles: %w", err)
	}

	raw, session, err := s.sessions.Issue(ctx, account.ID, roles, persistent)
	if err != nil {
		return "", nil, err
	}

	s.publishLoginSucceeded(ctx, account.ID, session.ID)

	return raw, session, nil
}

// ConfirmEmail redeems a confirmation token and flips the account's
// confirmation flag. The token is single-use; redeeming it again yields
// ErrTokenAlreadyUsed even when the account is already confirmed.
func (s *AuthService) ConfirmEmail(ctx context.Context, userID, rawToken string) error {
	if userID == "" || rawToken == "" {
		return ErrTokenInvalid
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownUser
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	if err := s.issuer.Verify(ctx, userID, rawToken, domain.TokenPurposeEmailConfirmation); err != nil {
		return err
	}

	if err := s.users.ConfirmEmail(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("confirm email: %w", err)
	}

	s.publishEmailConfirmed(ctx, userID)

	return nil
}

// Logout revokes the session behind the raw handle. Unknown handles succeed.
func (s *AuthService) Logout(ctx context.Context, rawHandle string) error {
	session, err := s.sessions.Validate(ctx, rawHandle)
	if err != nil && !errors.Is(err, ErrUnauthenticated) {
		return err
	}

	if err := s.sessions.Revoke(ctx, rawHandle); err != nil {
		return err
	}

	if session != nil {
		s.publishSessionRevoked(ctx, session.UserID, session.ID, "logout")
	}

	return nil
}

// CurrentUser resolves the raw handle to the account and the session's role
// snapshot. Role changes made after issuance are not reflected here.
func (s *AuthService) CurrentUser(ctx context.Context, rawHandle string) (*domain.Account, *domain.Session, error) {
	session, err := s.sessions.Validate(ctx, rawHandle)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, fmt.Errorf("load account: %w", err)
	}

	return account, session, nil
}

func (s *AuthService) publishRegistered(ctx context.Context, account domain.Account) {
	event := domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       account.ID,
		Email:        account.Email,
		RegisteredAt: account.RegisteredAt,
	}
	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		s.logger.Warn("publish account registered failed", zap.Error(err))
	}
}

func (s *AuthService) publishEmailConfirmed(ctx context.Context, userID string) {
	event := domain.EmailConfirmedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		ConfirmedAt: s.now().UTC(),
	}
	if err := s.events.PublishEmailConfirmed(ctx, event); err != nil {
		s.logger.Warn("publish email confirmed failed", zap.Error(err))
	}
}

func (s *AuthService) publishLoginSucceeded(ctx context.Context, userID, sessionID string) {
	event := domain.LoginSucceededEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		At:        s.now().UTC(),
	}
	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login succeeded failed", zap.Error(err))
	}
}

func (s *AuthService) publishLoginFailed(ctx context.Context, userID string, count int) {
	event := domain.LoginFailedEvent{
		EventID:      uuid.NewString(),
		UserID:       userID,
		FailureCount: count,
		At:           s.now().UTC(),
	}
	if err := s.events.PublishLoginFailed(ctx, event); err != nil {
		s.logger.Warn("publish login failed event failed", zap.Error(err))
	}
}

func (s *AuthService) publishAccountLocked(ctx context.Context, userID string, until time.Time) {
	event := domain.AccountLockedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		LockedUntil: until,
		At:          s.now().UTC(),
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked failed", zap.Error(err))
	}
}

func (s *AuthService) publishSessionRevoked(ctx context.Context, userID, sessionID, reason string) {
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Reason:    reason,
		At:        s.now().UTC(),
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked failed", zap.Error(err))
	}
}
