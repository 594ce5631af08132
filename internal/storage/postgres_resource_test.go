package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
)

func TestPostgresRepo_DeductForService_FloorsAtZero(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	rows := sqlmock.NewRows([]string{"id", "workspace_id", "name", "quantity", "threshold", "linked_service_ids"}).
		AddRow("r-1", testWorkspaceID, "Gloves", 1, 2, []byte(`["svc-1"]`)).
		AddRow("r-2", testWorkspaceID, "Masks", 0, 5, []byte(`["svc-1","svc-2"]`))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM .*resources.* WHERE linked_service_ids @> \$1::jsonb .*FOR UPDATE`).
		WithArgs(`["svc-1"]`).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE .*resources.* SET .*quantity.* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	touched, err := repo.DeductForService(ctx, "svc-1")
	require.NoError(t, err)
	require.Len(t, touched, 2)
	assert.Equal(t, 0, touched[0].Quantity)
	assert.Equal(t, 0, touched[1].Quantity)
	assert.True(t, touched[1].LinkedTo("svc-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeductForService_RequiresService(t *testing.T) {
	repo, mock := newTestRepo(t)

	_, err := repo.DeductForService(testContext(), "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeductForBooking_CompletesStepAndDeducts(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE .*automation_steps.* SET .*status.* WHERE booking_id = \$\d+ AND step = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM .*resources.* WHERE linked_service_ids @> \$1::jsonb .*FOR UPDATE`).
		WithArgs(`["svc-1"]`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "name", "quantity", "threshold", "linked_service_ids"}).
			AddRow("r-1", testWorkspaceID, "Gloves", 3, 5, []byte(`["svc-1"]`)))
	mock.ExpectExec(`UPDATE .*resources.* SET .*quantity.* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	touched, deducted, err := repo.DeductForBooking(testContext(), "b-1", "svc-1")
	require.NoError(t, err)
	assert.True(t, deducted)
	require.Len(t, touched, 1)
	assert.Equal(t, 2, touched[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeductForBooking_StepNotRunningTouchesNothing(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE .*automation_steps.* SET .*status.* WHERE booking_id = \$\d+ AND step = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	touched, deducted, err := repo.DeductForBooking(testContext(), "b-1", "svc-1")
	require.NoError(t, err)
	assert.False(t, deducted)
	assert.Empty(t, touched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsJSON(t *testing.T) {
	assert.Equal(t, `["svc-1"]`, containsJSON("svc-1"))
	assert.Equal(t, `["a\"b"]`, containsJSON(`a"b`))
}
