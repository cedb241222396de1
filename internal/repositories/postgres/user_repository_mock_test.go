package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepository(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return NewUserRepository(db), mock
}

func TestFindByID_Mock(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "role", "is_active", "created_at", "updated_at"}).
			AddRow("u1", "alice", "alice@example.com", "admin", true, now, now))

	user, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.IsAdmin())
	assert.True(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID_Mock_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID_Mock_QueryError(t *testing.T) {
	repo, mock := newMockRepository(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(boom)

	_, err := repo.FindByID(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestFindByIDs_Mock(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT "id","username","email","last_login" FROM "users" WHERE id IN \(\$1,\$2\) ORDER BY username`).
		WithArgs("u2", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "last_login"}).
			AddRow("u1", "alice", "alice@example.com", nil).
			AddRow("u2", "bob", "bob@example.com", nil))

	users, err := repo.FindByIDs(context.Background(), []string{"u2", "u1"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Nil(t, users[0].LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDs_EmptySkipsQuery(t *testing.T) {
	repo, mock := newMockRepository(t)

	users, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}
