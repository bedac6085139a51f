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

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateConfirmation inserts a new confirmation token row.
func (r *TokenRepository) CreateConfirmation(ctx context.Context, token domain.ConfirmationToken) error {
	sql, args, err := r.builder.Insert("authgate.confirmation_tokens").
		Columns(
			"id",
			"user_id",
			"token_hash",
			"purpose",
			"created_at",
			"expires_at",
			"used_at",
		).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.Purpose,
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert confirmation token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert confirmation token: %w", err)
	}

	return nil
}

// GetConfirmationByHash retrieves a confirmation token by its hash.
func (r *TokenRepository) GetConfirmationByHash(ctx context.Context, hash string) (*domain.ConfirmationToken, error) {
	stmt, args, err := r.builder.
		Select(
			"id",
			"user_id",
			"token_hash",
			"purpose",
			"created_at",
			"expires_at",
			"used_at",
		).
		From("authgate.confirmation_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select confirmation token sql: %w", err)
	}

	var token domain.ConfirmationToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.Purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan confirmation token: %w", err)
	}

	return &token, nil
}

// ConsumeConfirmation marks a token used iff it is still unused. The guard in
// the WHERE clause makes verify-and-mark atomic: of two racing consumers,
// exactly one sees an affected row; the other gets repository.ErrNotFound.
func (r *TokenRepository) ConsumeConfirmation(ctx context.Context, id string, at time.Time) error {
	sql, args, err := r.builder.Update("authgate.confirmation_tokens").
		Set("used_at", at).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume confirmation sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("consume confirmation token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteExpired removes tokens whose expiry precedes the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	sql, args, err := r.builder.Delete("authgate.confirmation_tokens").
		Where(squirrel.Lt{"expires_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
