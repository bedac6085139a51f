package usecase

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/avralex/authgate/internal/infra/security"
)

const strongTestPassword = "Sup3r!SecurePass#7890"

func TestMain(m *testing.M) {
	// Lighter hashing parameters keep the suite fast; production values are
	// set from configuration at startup.
	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type authFixture struct {
	service  *AuthService
	users    *memUserRepository
	tokens   *memTokenRepository
	store    *memSessionRepository
	events   *recordingPublisher
	mail     *recordingMailer
	lockout  *LockoutPolicy
	issuer   *TokenIssuer
	sessions *SessionManager
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := newMemUserRepository()
	tokens := newMemTokenRepository()
	store := newMemSessionRepository()
	events := &recordingPublisher{}
	mail := &recordingMailer{}
	log := zaptest.NewLogger(t)

	lockout := NewLockoutPolicy(users, 3, 15*time.Minute)
	issuer := NewTokenIssuer(tokens, 24*time.Hour)
	sessions := NewSessionManager(store, 30*time.Minute, 14*24*time.Hour, log)

	service, err := NewAuthService(
		users,
		lockout,
		issuer,
		sessions,
		security.DefaultPasswordValidator(),
		mail,
		events,
		log,
		"https://auth.example.com",
	)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	return &authFixture{
		service:  service,
		users:    users,
		tokens:   tokens,
		store:    store,
		events:   events,
		mail:     mail,
		lockout:  lockout,
		issuer:   issuer,
		sessions: sessions,
	}
}

// registerConfirmed registers and confirms an account, returning its ID.
func (f *authFixture) registerConfirmed(t *testing.T, email string) string {
	t.Helper()

	account, err := f.service.Register(context.Background(), email, strongTestPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	link := f.mail.links[len(f.mail.links)-1]
	raw := confirmationTokenFromLink(t, link)

	if err := f.service.ConfirmEmail(context.Background(), account.ID, raw); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}

	return account.ID
}

func confirmationTokenFromLink(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("no token in link %q", link)
	}
	return token
}

func TestRegisterSendsConfirmationAndPublishes(t *testing.T) {
	f := newAuthFixture(t)

	account, err := f.service.Register(context.Background(), " Alice@Example.COM ", strongTestPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if account.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.EmailConfirmed {
		t.Fatal("fresh account must start unconfirmed")
	}
	if account.PasswordHash == strongTestPassword {
		t.Fatal("password stored in clear")
	}

	if len(f.mail.links) != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", len(f.mail.links))
	}
	if !strings.Contains(f.mail.links[0], "userId="+account.ID) {
		t.Fatalf("link missing user id: %q", f.mail.links[0])
	}
	if len(f.events.registered) != 1 {
		t.Fatalf("expected registered event, got %d", len(f.events.registered))
	}

	roles, err := f.users.GetRoles(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetRoles: %v", err)
	}
	if len(roles) != 1 || roles[0] != DefaultRole {
		t.Fatalf("expected default role, got %v", roles)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.service.Register(context.Background(), "alice@example.com", strongTestPassword); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.service.Register(context.Background(), "ALICE@example.com", strongTestPassword); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.Register(context.Background(), "alice@example.com", "short")
	var validation *security.PasswordValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected PasswordValidationError, got %v", err)
	}
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.mail.sendErr = errors.New("smtp down")

	account, err := f.service.Register(context.Background(), "alice@example.com", strongTestPassword)
	if err != nil {
		t.Fatalf("Register should not fail on mail dispatch, got %v", err)
	}
	if _, err := f.users.GetByID(context.Background(), account.ID); err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
}

func TestAuthenticateRequiresConfirmedEmail(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.service.Register(context.Background(), "alice@example.com", strongTestPassword); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
}

func TestAuthenticateIssuesSessionWithRoleSnapshot(t *testing.T) {
	f := newAuthFixture(t)
	id := f.registerConfirmed(t, "alice@example.com")

	raw, session, err := f.service.Authenticate(context.Background(), "Alice@Example.com", strongTestPassword, true)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if raw == "" {
		t.Fatal("expected session handle")
	}
	if session.UserID != id {
		t.Fatalf("session bound to %s, want %s", session.UserID, id)
	}
	if !session.Persistent {
		t.Fatal("expected persistent session")
	}
	if !session.HasRole(DefaultRole) {
		t.Fatalf("expected role snapshot with %s, got %v", DefaultRole, session.Roles)
	}
	if len(f.events.succeeded) != 1 {
		t.Fatalf("expected login succeeded event, got %d", len(f.events.succeeded))
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.service.Authenticate(context.Background(), "ghost@example.com", strongTestPassword, false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(f.events.failed) != 1 {
		t.Fatalf("expected login failed event, got %d", len(f.events.failed))
	}
	if f.events.failed[0].UserID != "" {
		t.Fatal("unknown-email failure must not carry a user id")
	}
}

func TestAuthenticateLocksAfterThreshold(t *testing.T) {
	f := newAuthFixture(t)
	id := f.registerConfirmed(t, "alice@example.com")

	for attempt := 1; attempt <= 2; attempt++ {
		if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", "Wrong!Password#1", false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", attempt, err)
		}
	}

	// Third failure crosses the threshold.
	_, _, err := f.service.Authenticate(context.Background(), "alice@example.com", "Wrong!Password#1", false)
	locked, ok := IsLockedOut(err)
	if !ok {
		t.Fatalf("expected LockedOutError, got %v", err)
	}
	if !locked.Until.After(time.Now()) {
		t.Fatalf("lock deadline in the past: %v", locked.Until)
	}
	if len(f.events.locked) != 1 {
		t.Fatalf("expected account locked event, got %d", len(f.events.locked))
	}

	// The correct password is refused while the lock holds.
	if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false); err == nil {
		t.Fatal("expected locked account to refuse correct password")
	} else if _, ok := IsLockedOut(err); !ok {
		t.Fatalf("expected LockedOutError, got %v", err)
	}

	account, err := f.users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if account.FailedAttemptCount != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", account.FailedAttemptCount)
	}
}

func TestAuthenticateSucceedsAfterLockExpires(t *testing.T) {
	f := newAuthFixture(t)
	id := f.registerConfirmed(t, "alice@example.com")

	base := time.Now().Truncate(time.Second)
	current := base
	clock := func() time.Time { return current }
	f.lockout.now = clock
	f.service.now = clock

	for attempt := 1; attempt <= 2; attempt++ {
		if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", "Wrong!Password#1", false); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", attempt, err)
		}
	}

	_, _, err := f.service.Authenticate(context.Background(), "alice@example.com", "Wrong!Password#1", false)
	locked, ok := IsLockedOut(err)
	if !ok {
		t.Fatalf("expected LockedOutError, got %v", err)
	}
	// The deadline is anchored at the attempt that crossed the threshold.
	if !locked.Until.Equal(base.Add(15 * time.Minute)) {
		t.Fatalf("expected deadline %v, got %v", base.Add(15*time.Minute), locked.Until)
	}

	// The correct password is still refused just before the deadline.
	current = base.Add(15*time.Minute - time.Second)
	if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false); err == nil {
		t.Fatal("expected locked account to refuse correct password")
	} else if _, ok := IsLockedOut(err); !ok {
		t.Fatalf("expected LockedOutError, got %v", err)
	}

	// Once the lock lapses the correct password logs in and clears the
	// bookkeeping.
	current = base.Add(15*time.Minute + time.Second)
	raw, session, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false)
	if err != nil {
		t.Fatalf("Authenticate after lock expiry: %v", err)
	}
	if _, err := f.sessions.Validate(context.Background(), raw); err != nil {
		t.Fatalf("Validate issued handle: %v", err)
	}
	if session.UserID != id {
		t.Fatalf("expected session for %s, got %s", id, session.UserID)
	}

	account, err := f.users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if account.FailedAttemptCount != 0 {
		t.Fatalf("expected counter reset, got %d", account.FailedAttemptCount)
	}
	if account.LockedUntil != nil {
		t.Fatalf("expected lock cleared, got %v", account.LockedUntil)
	}
}

func TestAuthenticateSuccessResetsFailures(t *testing.T) {
	f := newAuthFixture(t)
	id := f.registerConfirmed(t, "alice@example.com")

	if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", "Wrong!Password#1", false); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	account, err := f.users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if account.FailedAttemptCount != 0 {
		t.Fatalf("expected counter reset, got %d", account.FailedAttemptCount)
	}
}

func TestConfirmEmailIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)

	account, err := f.service.Register(context.Background(), "alice@example.com", strongTestPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	raw := confirmationTokenFromLink(t, f.mail.links[0])

	if err := f.service.ConfirmEmail(context.Background(), account.ID, raw); err != nil {
		t.Fatalf("ConfirmEmail: %v", err)
	}

	stored, err := f.users.GetByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.EmailConfirmed {
		t.Fatal("expected account confirmed")
	}
	if len(f.events.confirmed) != 1 {
		t.Fatalf("expected confirmed event, got %d", len(f.events.confirmed))
	}

	if err := f.service.ConfirmEmail(context.Background(), account.ID, raw); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
}

func TestConfirmEmailRejectsForeignToken(t *testing.T) {
	f := newAuthFixture(t)

	account, err := f.service.Register(context.Background(), "alice@example.com", strongTestPassword)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	raw := confirmationTokenFromLink(t, f.mail.links[0])

	if err := f.service.ConfirmEmail(context.Background(), "someone-else", raw); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}

	other, err := f.service.Register(context.Background(), "bob@example.com", strongTestPassword)
	if err != nil {
		t.Fatalf("Register second account: %v", err)
	}
	if err := f.service.ConfirmEmail(context.Background(), other.ID, raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for foreign token, got %v", err)
	}

	// The failed attempt must not consume the token.
	if err := f.service.ConfirmEmail(context.Background(), account.ID, raw); err != nil {
		t.Fatalf("ConfirmEmail after foreign attempt: %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture(t)
	f.registerConfirmed(t, "alice@example.com")

	raw, _, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := f.service.Logout(context.Background(), raw); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := f.service.CurrentUser(context.Background(), raw); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after logout, got %v", err)
	}
	if len(f.events.revoked) != 1 {
		t.Fatalf("expected session revoked event, got %d", len(f.events.revoked))
	}

	// Logout with a dead handle still succeeds.
	if err := f.service.Logout(context.Background(), raw); err != nil {
		t.Fatalf("repeat Logout: %v", err)
	}
}

func TestCurrentUserReturnsAccountAndSnapshot(t *testing.T) {
	f := newAuthFixture(t)
	id := f.registerConfirmed(t, "alice@example.com")

	raw, _, err := f.service.Authenticate(context.Background(), "alice@example.com", strongTestPassword, false)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	account, session, err := f.service.CurrentUser(context.Background(), raw)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if account.ID != id {
		t.Fatalf("expected account %s, got %s", id, account.ID)
	}
	if session.UserID != id {
		t.Fatalf("expected session for %s, got %s", id, session.UserID)
	}

	// Roles granted after issuance stay invisible to the session.
	if err := f.users.AssignRole(context.Background(), id, "Admin"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	_, session, err = f.service.CurrentUser(context.Background(), raw)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if session.HasRole("Admin") {
		t.Fatal("role snapshot must not pick up later grants")
	}
}

func TestCurrentUserWithEmptyHandle(t *testing.T) {
	f := newAuthFixture(t)

	if _, _, err := f.service.CurrentUser(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
