package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/repository"
)

// memUserRepository is an in-memory port.UserRepository with the same lockout
// arithmetic as the SQL implementation.
type memUserRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	roles    map[string][]string

	createErr        error
	recordFailureErr error
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{
		accounts: make(map[string]*domain.Account),
		roles:    make(map[string][]string),
	}
}

func (m *memUserRepository) Create(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.accounts {
		if existing.Email == account.Email {
			return repository.ErrDuplicate
		}
	}
	copy := account
	m.accounts[account.ID] = &copy
	return nil
}

func (m *memUserRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *account
	return &copy, nil
}

func (m *memUserRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			copy := *account
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepository) ConfirmEmail(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.EmailConfirmed = true
	return nil
}

func (m *memUserRepository) RecordAuthFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordFailureErr != nil {
		return 0, nil, m.recordFailureErr
	}
	account, ok := m.accounts[id]
	if !ok {
		return 0, nil, repository.ErrNotFound
	}
	account.FailedAttemptCount++
	if account.FailedAttemptCount >= threshold {
		until := lockUntil
		account.LockedUntil = &until
	}
	return account.FailedAttemptCount, account.LockedUntil, nil
}

func (m *memUserRepository) RecordAuthSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedAttemptCount = 0
	account.LockedUntil = nil
	last := at
	account.LastLogin = &last
	return nil
}

func (m *memUserRepository) GetRoles(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.roles[id]...), nil
}

func (m *memUserRepository) AssignRole(_ context.Context, id string, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles[id] {
		if existing == role {
			return nil
		}
	}
	m.roles[id] = append(m.roles[id], role)
	return nil
}

// memTokenRepository is an in-memory port.TokenRepository whose consume step
// mirrors the conditional-update guard.
type memTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.ConfirmationToken
}

func newMemTokenRepository() *memTokenRepository {
	return &memTokenRepository{tokens: make(map[string]*domain.ConfirmationToken)}
}

func (m *memTokenRepository) CreateConfirmation(_ context.Context, token domain.ConfirmationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := token
	m.tokens[token.ID] = &copy
	return nil
}

func (m *memTokenRepository) GetConfirmationByHash(_ context.Context, hash string) (*domain.ConfirmationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, token := range m.tokens {
		if token.TokenHash == hash {
			copy := *token
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memTokenRepository) ConsumeConfirmation(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[id]
	if !ok || token.UsedAt != nil {
		return repository.ErrNotFound
	}
	used := at
	token.UsedAt = &used
	return nil
}

func (m *memTokenRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, token := range m.tokens {
		if token.ExpiresAt.Before(cutoff) {
			delete(m.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// memSessionRepository is an in-memory port.SessionRepository.
type memSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemSessionRepository() *memSessionRepository {
	return &memSessionRepository{sessions: make(map[string]*domain.Session)}
}

func (m *memSessionRepository) Create(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := session
	m.sessions[session.TokenHash] = &copy
	return nil
}

func (m *memSessionRepository) GetByTokenHash(_ context.Context, hash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *session
	return &copy, nil
}

func (m *memSessionRepository) Revoke(_ context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[hash]
	if !ok || session.RevokedAt != nil {
		return nil
	}
	revoked := at
	session.RevokedAt = &revoked
	return nil
}

func (m *memSessionRepository) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revoked int64
	for _, session := range m.sessions {
		if session.UserID == userID && session.RevokedAt != nil {
			continue
		}
		if session.UserID == userID {
			stamp := at
			session.RevokedAt = &stamp
			revoked++
		}
	}
	return revoked, nil
}

func (m *memSessionRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for hash, session := range m.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(m.sessions, hash)
			deleted++
		}
	}
	return deleted, nil
}

// recordingPublisher records event publications by type.
type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.AccountRegisteredEvent
	confirmed  []domain.EmailConfirmedEvent
	succeeded  []domain.LoginSucceededEvent
	failed     []domain.LoginFailedEvent
	locked     []domain.AccountLockedEvent
	revoked    []domain.SessionRevokedEvent
	publishErr error
}

func (p *recordingPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return p.publishErr
}

func (p *recordingPublisher) PublishEmailConfirmed(_ context.Context, event domain.EmailConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, event)
	return p.publishErr
}

func (p *recordingPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, event)
	return p.publishErr
}

func (p *recordingPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return p.publishErr
}

func (p *recordingPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return p.publishErr
}

func (p *recordingPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return p.publishErr
}

// recordingMailer captures dispatched confirmation links.
type recordingMailer struct {
	mu      sync.Mutex
	emails  []string
	links   []string
	sendErr error
}

func (m *recordingMailer) SendConfirmationLink(_ context.Context, email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	m.links = append(m.links, link)
	return m.sendErr
}
