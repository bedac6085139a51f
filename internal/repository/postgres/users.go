package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/repository"
)

const uniqueViolationCode = "23505"

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new account row. Emails are stored lowercased; a
// uniqueness violation surfaces as repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, account domain.Account) error {
	sql, args, err := r.builder.Insert("authgate.accounts").
		Columns(
			"id",
			"email",
			"password_hash",
			"password_algo",
			"email_confirmed",
			"failed_attempt_count",
			"locked_until",
			"registered_at",
			"last_login",
		).
		Values(
			account.ID,
			account.Email,
			account.PasswordHash,
			account.PasswordAlgo,
			account.EmailConfirmed,
			account.FailedAttemptCount,
			account.LockedUntil,
			account.RegisteredAt,
			account.LastLogin,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves an account by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Expr("lower(email) = lower(?)", email)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by email sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// ConfirmEmail flips the confirmation flag for the account.
func (r *UserRepository) ConfirmEmail(ctx context.Context, id string) error {
	sql, args, err := r.builder.Update("authgate.accounts").
		Set("email_confirmed", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build confirm email sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordAuthFailure increments the failure counter and conditionally arms the
// lock deadline in one statement, so two racing failures against the same
// account cannot skip the threshold.
func (r *UserRepository) RecordAuthFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	sql, args, err := r.builder.Update("authgate.accounts").
		Set("failed_attempt_count", squirrel.Expr("failed_attempt_count + 1")).
		Set("locked_until", squirrel.Expr("CASE WHEN failed_attempt_count + 1 >= ? THEN ? ELSE locked_until END", threshold, lockUntil)).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING failed_attempt_count, locked_until").
		ToSql()
	if err != nil {
		return 0, nil, fmt.Errorf("build record failure sql: %w", err)
	}

	var (
		count       int
		lockedUntil *time.Time
	)
	if err := r.exec.QueryRow(ctx, sql, args...).Scan(&count, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, repository.ErrNotFound
		}
		return 0, nil, fmt.Errorf("record auth failure: %w", err)
	}

	return count, lockedUntil, nil
}

// RecordAuthSuccess zeroes the failure counter, clears the lock deadline, and
// stamps last_login.
func (r *UserRepository) RecordAuthSuccess(ctx context.Context, id string, at time.Time) error {
	sql, args, err := r.builder.Update("authgate.accounts").
		Set("failed_attempt_count", 0).
		Set("locked_until", nil).
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record success sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("record auth success: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetRoles lists role names assigned to the account.
func (r *UserRepository) GetRoles(ctx context.Context, id string) ([]string, error) {
	stmt, args, err := r.builder.
		Select("role").
		From("authgate.account_roles").
		Where(squirrel.Eq{"user_id": id}).
		OrderBy("role").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// AssignRole grants a role to the account; assigning an already-held role is
// a no-op.
func (r *UserRepository) AssignRole(ctx context.Context, id string, role string) error {
	sql, args, err := r.builder.Insert("authgate.account_roles").
		Columns("user_id", "role").
		Values(id, role).
		Suffix("ON CONFLICT (user_id, role) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

func (r *UserRepository) selectAccounts() squirrel.SelectBuilder {
	return r.builder.
		Select(
			"id",
			"email",
			"password_hash",
			"password_algo",
			"email_confirmed",
			"failed_attempt_count",
			"locked_until",
			"registered_at",
			"last_login",
		).
		From("authgate.accounts")
}

func (r *UserRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.PasswordAlgo,
		&account.EmailConfirmed,
		&account.FailedAttemptCount,
		&account.LockedUntil,
		&account.RegisteredAt,
		&account.LastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &account, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
