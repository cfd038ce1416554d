package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicehub/booking-engine/internal/models"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "phone", "email", "first_name", "last_name", "roles", "status", "created_at", "updated_at"})
}

func TestUserRepository_FindFirstByRole(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)
		adminID := uuid.New()

		mock.ExpectQuery("FROM users (.+) ANY\\(roles\\)").
			WithArgs(models.RoleSuperAdmin).
			WillReturnRows(userRows().AddRow(adminID.String(), "+919876543210", "ops@example.com", "Asha", "Rao",
				"{super_admin,admin}", "active", time.Now(), time.Now()))

		user, err := repo.FindFirstByRole(ctx, models.RoleSuperAdmin)
		require.NoError(t, err)
		assert.Equal(t, adminID, user.ID)
		assert.Equal(t, []string{"super_admin", "admin"}, []string(user.Roles))
		assert.Equal(t, "Asha", user.FirstName.String)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery("FROM users (.+) ANY\\(roles\\)").WillReturnRows(userRows())

		_, err := repo.FindFirstByRole(ctx, models.RoleSuperAdmin)
		assert.True(t, errors.Is(err, models.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
