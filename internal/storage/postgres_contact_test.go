package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

func TestPostgresRepo_FindContactByEmail_Normalizes(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	rows := sqlmock.NewRows([]string{"id", "workspace_id", "name", "email"}).
		AddRow("c-1", testWorkspaceID, "Ana", "ana@example.com")
	mock.ExpectQuery(`SELECT \* FROM .*contacts.* WHERE email = \$1`).
		WithArgs("ana@example.com", 1).
		WillReturnRows(rows)

	contact, err := repo.FindContactByEmail(ctx, "  ANA@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "c-1", contact.ID)
	assert.Equal(t, "Ana", contact.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindContactByPhone_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	mock.ExpectQuery(`SELECT \* FROM .*contacts.* WHERE phone = \$1`).
		WithArgs("+15551234567", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindContactByPhone(ctx, "+1 (555) 123-4567")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindContactByEmail_Empty(t *testing.T) {
	repo, mock := newTestRepo(t)

	_, err := repo.FindContactByEmail(testContext(), "   ")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateContact_WorkspaceMismatch(t *testing.T) {
	repo, mock := newTestRepo(t)

	err := repo.CreateContact(testContext(), model.Contact{ID: "c-1", WorkspaceID: "ws-other", Name: "Ana"})
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CreateContact_Duplicate(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO .*contacts.*`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_contacts_email"})
	mock.ExpectRollback()

	err := repo.CreateContact(ctx, model.Contact{ID: "c-2", WorkspaceID: testWorkspaceID, Name: "Ana", Email: "ana@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FillContactIdentity_SkipsOwnedPhone(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM .*contacts.* WHERE id = \$1 .*FOR UPDATE`).
		WithArgs("c-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "name", "email", "phone"}).
			AddRow("c-1", testWorkspaceID, "Ana", "ana@example.com", ""))
	mock.ExpectQuery(`SELECT .*id.* FROM .*contacts.* WHERE phone = \$1 AND id <> \$2`).
		WithArgs("+15550001111", "c-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c-9"))
	mock.ExpectCommit()

	contact, err := repo.FillContactIdentity(ctx, "c-1", model.ContactInput{Name: "Ana", Phone: "+15550001111"})
	require.NoError(t, err)
	assert.Empty(t, contact.Phone)
	assert.Equal(t, "ana@example.com", contact.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}
