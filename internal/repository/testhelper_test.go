package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/appkit/internal/database"
)

// newSQLiteDB はマイグレーション適用済みの一時SQLiteデータベースを返す。
func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dbURL := "sqlite://" + t.TempDir() + "/repo.db"
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newMockDB はPostgreSQL方言のsqlmockを返す。
func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() {
		db.Close()
	})
	return db, mock
}
