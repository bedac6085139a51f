package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/repository"
)

func TestUserRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	registeredAt := time.Now().UTC()
	account := domain.Account{
		ID:           "acct-1",
		Email:        "alice@example.com",
		PasswordHash: "argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
		PasswordAlgo: "argon2id",
		RegisteredAt: registeredAt,
	}

	mock.ExpectExec(`INSERT INTO authgate\.accounts`).
		WithArgs(
			account.ID,
			account.Email,
			account.PasswordHash,
			account.PasswordAlgo,
			false,
			0,
			(*time.Time)(nil),
			registeredAt,
			(*time.Time)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByEmailNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM authgate\.accounts WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_RecordAuthFailureCrossesThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	lockUntil := time.Now().UTC().Add(15 * time.Minute)

	mock.ExpectQuery(`UPDATE authgate\.accounts SET failed_attempt_count = failed_attempt_count \+ 1`).
		WithArgs(5, lockUntil, "acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_attempt_count", "locked_until"}).
			AddRow(5, &lockUntil))

	count, lockedUntil, err := repo.RecordAuthFailure(context.Background(), "acct-1", 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordAuthFailure returned error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected count 5, got %d", count)
	}
	if lockedUntil == nil || !lockedUntil.Equal(lockUntil) {
		t.Fatalf("expected lock deadline %v, got %v", lockUntil, lockedUntil)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_RecordAuthSuccessClearsLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE authgate\.accounts SET failed_attempt_count = \$1, locked_until = \$2, last_login = \$3`).
		WithArgs(0, nil, at, "acct-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.RecordAuthSuccess(context.Background(), "acct-1", at); err != nil {
		t.Fatalf("RecordAuthSuccess returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetRoles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT role FROM authgate\.account_roles`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("Admin").AddRow("User"))

	roles, err := repo.GetRoles(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("GetRoles returned error: %v", err)
	}
	if len(roles) != 2 || roles[0] != "Admin" || roles[1] != "User" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
