package updatesessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/dmitrijs2005/framekeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreateAndGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now()

	mock.ExpectExec(`INSERT INTO update_sessions`).
		WithArgs("u1", "dev1", false, false, created, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.UpdateSession{
		ID:        "u1",
		DeviceID:  "dev1",
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectQuery(`SELECT .* FROM update_sessions`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "ready", "expired", "created_at", "sealed_links", "links_nonce"}).
			AddRow("u1", "dev1", true, false, created, []byte("sealed"), []byte("nonce")))

	s, err := repo.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.ReadyForTransfer || s.Expired {
		t.Fatalf("unexpected flags: %+v", s)
	}
	if string(s.SealedLinks) != "sealed" {
		t.Fatalf("unexpected sealed links: %q", s.SealedLinks)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM update_sessions`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConsume_ClaimsOnce(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now()
	mock.ExpectQuery(`UPDATE update_sessions SET expired=true`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "ready", "created_at", "sealed_links", "links_nonce"}).
			AddRow("u1", "dev1", true, created, []byte("sealed"), []byte("nonce")))

	s, err := repo.Consume(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.DeviceID != "dev1" || !s.ReadyForTransfer {
		t.Fatalf("unexpected session: %+v", s)
	}

	// Already claimed: the WHERE clause matches nothing.
	mock.ExpectQuery(`UPDATE update_sessions SET expired=true`).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Consume(context.Background(), "u1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
}

func TestExpire_DropsSealedPayload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE update_sessions SET expired=true, sealed_links=NULL`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Expire(context.Background(), "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkReady_MissingSession(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE update_sessions SET ready=true`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkReady(context.Background(), "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteStale(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(`DELETE FROM update_sessions WHERE expired=true OR created_at`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteStale(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 rows deleted, got %d", n)
	}
}
