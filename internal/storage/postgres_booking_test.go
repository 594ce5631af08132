package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
)

func bookingRows(status model.BookingStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "workspace_id", "contact_id", "service_id", "date", "time", "status"}).
		AddRow("b-1", testWorkspaceID, "c-1", "svc-1", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), "10:00 AM", string(status))
}

func TestPostgresRepo_UpdateBookingStatus_Cancel(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM .*bookings.* WHERE id = \$1 .*FOR UPDATE`).
		WithArgs("b-1", 1).
		WillReturnRows(bookingRows(model.BookingConfirmed))
	mock.ExpectExec(`UPDATE .*bookings.* SET .*cancelled_at.* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, previous, err := repo.UpdateBookingStatus(ctx, "b-1", model.BookingCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, previous)
	assert.Equal(t, model.BookingCancelled, booking.Status)
	assert.NotNil(t, booking.CancelledAt)
	assert.Equal(t, "2024-06-10", booking.Date.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateBookingStatus_Unchanged(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM .*bookings.* WHERE id = \$1 .*FOR UPDATE`).
		WithArgs("b-1", 1).
		WillReturnRows(bookingRows(model.BookingCompleted))
	mock.ExpectCommit()

	booking, previous, err := repo.UpdateBookingStatus(ctx, "b-1", model.BookingCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCompleted, previous)
	assert.Equal(t, model.BookingCompleted, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_UpdateBookingStatus_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)
	ctx := testContext()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM .*bookings.* WHERE id = \$1 .*FOR UPDATE`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err := repo.UpdateBookingStatus(ctx, "missing", model.BookingCancelled)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindBookingBySubmissionID_Empty(t *testing.T) {
	repo, mock := newTestRepo(t)

	_, err := repo.FindBookingBySubmissionID(testContext(), "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ClaimAutomationStep(t *testing.T) {
	t.Run("Claimed", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO .*automation_steps.* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE .*automation_steps.* SET .* WHERE booking_id = \$\d+ AND step = \$\d+ AND \(status NOT IN .* OR \(status = \$\d+ AND updated_at < \$\d+\)\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		claimed, err := repo.ClaimAutomationStep(testContext(), "b-1", model.StepDeduction, time.Now().Add(-5*time.Minute))
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already succeeded", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO .*automation_steps.* ON CONFLICT DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE .*automation_steps.* SET .* WHERE booking_id = \$\d+ AND step = \$\d+ AND \(status NOT IN .* OR \(status = \$\d+ AND updated_at < \$\d+\)\)`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		claimed, err := repo.ClaimAutomationStep(testContext(), "b-1", model.StepDeduction, time.Now().Add(-5*time.Minute))
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_ClaimAutomationStep_ReclaimsStaleRunning(t *testing.T) {
	repo, mock := newTestRepo(t)
	staleBefore := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO .*automation_steps.* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE .*automation_steps.* SET .* WHERE .*status = \$\d+ AND updated_at < \$\d+`).
		WithArgs(model.StepRunning, sqlmock.AnyArg(), "b-1", model.StepDeduction,
			model.StepSucceeded, model.StepRunning, model.StepRunning, staleBefore).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := repo.ClaimAutomationStep(testContext(), "b-1", model.StepDeduction, staleBefore)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_RecordAutomationStep_Upserts(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO .*automation_steps.* ON CONFLICT \("booking_id","step"\) DO UPDATE SET .*attempts.*automation_steps\.attempts \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordAutomationStep(testContext(), model.AutomationStep{
		BookingID: "b-1",
		Step:      model.StepForms,
		Status:    model.StepFailed,
		Error:     "template lookup failed",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
