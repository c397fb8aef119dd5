package resources

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

var resourceColumns = []string{
	"id", "device_id", "key_hash", "key_created_at", "storage_location",
	"source", "origin_hash", "album_handle", "session_code",
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now()

	mock.ExpectExec(`INSERT INTO resources`).
		WithArgs("r1", "dev1", []byte("hash"), created, "loc1", "upload", "orig", "alb", "CODE123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Resource{
		ID:              "r1",
		DeviceID:        "dev1",
		KeyHash:         []byte("hash"),
		KeyCreatedAt:    created,
		StorageLocation: "loc1",
		Source:          models.SourceUpload,
		OriginHash:      "orig",
		AlbumHandle:     "alb",
		SessionCode:     "CODE123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByIDAndDevice_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resources`).
		WithArgs("r1", "dev1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByIDAndDevice(context.Background(), "r1", "dev1")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByIDAndDevice_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now()
	mock.ExpectQuery(`SELECT .* FROM resources`).
		WithArgs("r1", "dev1").
		WillReturnRows(sqlmock.NewRows(resourceColumns).
			AddRow("r1", "dev1", []byte("hash"), created, "loc1", "album", "orig", "alb", ""))

	res, err := repo.GetByIDAndDevice(context.Background(), "r1", "dev1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != models.SourceScrapedAlbum {
		t.Fatalf("unexpected source: %v", res.Source)
	}
	if res.StorageLocation != "loc1" {
		t.Fatalf("unexpected storage location: %v", res.StorageLocation)
	}
}

func TestUpdateKey_NoRowIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE resources SET key_hash`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateKey(context.Background(), "r1", []byte("h"), time.Now())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_AbsentRowIsIdempotent(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM resources`).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("delete of absent row must not fail: %v", err)
	}
}

func TestListByDeviceAlbum(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Now()
	mock.ExpectQuery(`SELECT .* FROM resources`).
		WithArgs("dev1", "alb").
		WillReturnRows(sqlmock.NewRows(resourceColumns).
			AddRow("r1", "dev1", []byte("h1"), created, "l1", "album", "o1", "alb", "").
			AddRow("r2", "dev1", []byte("h2"), created, "l2", "album", "o2", "alb", ""))

	list, err := repo.ListByDeviceAlbum(context.Background(), "dev1", "alb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(list))
	}
	if list[1].OriginHash != "o2" {
		t.Fatalf("unexpected origin hash: %v", list[1].OriginHash)
	}
}

func TestClearStaleSessionCodes(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE resources SET session_code=''`).
		WithArgs("dev1", "CURRENT1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.ClearStaleSessionCodes(context.Background(), "dev1", "CURRENT1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListKeyCreatedBefore(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectQuery(`SELECT .* FROM resources`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows(resourceColumns).
			AddRow("r1", "dev1", []byte("h1"), cutoff.Add(-time.Hour), "l1", "upload", "", "", ""))

	list, err := repo.ListKeyCreatedBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "r1" {
		t.Fatalf("unexpected result: %+v", list)
	}
}
