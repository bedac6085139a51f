package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/repository"
)

// SessionRepository implements port.SessionRepository using PostgreSQL.
type SessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	return &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new session row with its role snapshot.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	sql, args, err := r.builder.Insert("authgate.sessions").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"roles",
			"persistent",
			"created_at",
			"expires_at",
			"revoked_at",
		).
		Values(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.Roles,
			session.Persistent,
			session.CreatedAt,
			session.ExpiresAt,
			session.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByTokenHash retrieves a session by the hash of its opaque handle.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select(
			"id",
			"user_id",
			"token_hash",
			"roles",
			"persistent",
			"created_at",
			"expires_at",
			"revoked_at",
		).
		From("authgate.sessions").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var session domain.Session
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.Roles,
		&session.Persistent,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &session, nil
}

// Revoke marks the matching session revoked. Already-revoked and unknown
// handles are treated as a successful no-op; the write is committed before
// Revoke returns, so subsequent validations observe it.
func (r *SessionRepository) Revoke(ctx context.Context, hash string, at time.Time) error {
	sql, args, err := r.builder.Update("authgate.sessions").
		Set("revoked_at", at).
		Where(squirrel.Eq{"token_hash": hash}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// RevokeAllForUser revokes every active session bound to the account.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	sql, args, err := r.builder.Update("authgate.sessions").
		Set("revoked_at", at).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke user sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}

// DeleteExpired removes sessions whose expiry precedes the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	sql, args, err := r.builder.Delete("authgate.sessions").
		Where(squirrel.Lt{"expires_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
