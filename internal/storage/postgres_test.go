package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	apperrors "gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

// Repository tests run GORM over sqlmock with the regexp matcher. The workspace
// namer qualifies every table with its schema, so expectations match on a
// schema-free fragment of the statement and use sqlmock.AnyArg for generated
// ids and timestamps.

const (
	testWorkspaceID = "ws-test"
	testSchema      = "careops_test"
)

// --- Test Helpers ---

// newTestRepo creates a PostgresRepo over sqlmock using the workspace namer.
func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
		NamingStrategy:         tenantNamer{schemaName: testSchema},
	})
	require.NoError(t, err)

	return &PostgresRepo{db: gormDB, workspaceID: testWorkspaceID, schemaName: testSchema}, mock
}

func testContext() context.Context {
	return tenant.WithWorkspaceID(context.Background(), testWorkspaceID)
}


func TestIsTransientError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil":                  {nil, false},
		"deadline":             {fmt.Errorf("find booking: %w", context.DeadlineExceeded), true},
		"record not found":     {gorm.ErrRecordNotFound, false},
		"connection exception": {&pgconn.PgError{Code: "08006"}, true},
		"too many connections": {&pgconn.PgError{Code: "53300"}, true},
		"deadlock":             {&pgconn.PgError{Code: "40P01"}, true},
		"serialization":        {&pgconn.PgError{Code: "40001"}, true},
		"unique violation":     {&pgconn.PgError{Code: "23505"}, false},
		"check violation":      {&pgconn.PgError{Code: "23514"}, false},
		"refused":              {errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"), true},
		"starting up":          {errors.New("FATAL: the database system is starting up"), true},
		"reset":                {errors.New("read: connection reset by peer"), true},
		"plain":                {errors.New("column \"quantity\" does not exist"), false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransientError(tc.err))
		})
	}
}

func TestTenantNamer_QualifiesTables(t *testing.T) {
	namer := tenantNamer{schemaName: SchemaName("acme")}

	assert.Equal(t, "careops_acme", SchemaName("acme"))
	assert.Equal(t, `"careops_acme".bookings`, namer.TableName("bookings"))
	assert.Equal(t, `"careops_acme".availability`, model.AvailabilityConfig{}.TableName(namer))
}

func TestPostgresRepo_Scope(t *testing.T) {
	repo, mock := newTestRepo(t)

	t.Run("Missing workspace", func(t *testing.T) {
		_, err := repo.FindBookingByID(context.Background(), "b-1")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("Other workspace", func(t *testing.T) {
		ctx := tenant.WithWorkspaceID(context.Background(), "ws-other")
		_, err := repo.FindBookingByID(ctx, "b-1")
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:               gormLogger.Default.LogMode(gormLogger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	repo := &PostgresRepo{db: gormDB, workspaceID: testWorkspaceID}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = repo.Ping(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Close(t *testing.T) {
	repo, mock := newTestRepo(t)
	mock.ExpectClose().WillReturnError(errors.New("already closed"))

	err := repo.Close(context.Background())
	assert.ErrorContains(t, err, "already closed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckConstraintViolation(t *testing.T) {
	submission := &pgconn.PgError{Code: "23505", ConstraintName: "idx_bookings_submission"}
	quantity := &pgconn.PgError{Code: "23514", ConstraintName: "chk_resources_quantity"}

	tests := []struct {
		name     string
		in       error
		want     error
		fragment string
	}{
		{"not found", fmt.Errorf("find reminder: %w", gorm.ErrRecordNotFound), apperrors.ErrNotFound, "record not found"},
		{"duplicate submission", submission, apperrors.ErrDuplicate, "idx_bookings_submission"},
		{"wrapped duplicate", fmt.Errorf("create booking: %w", submission), apperrors.ErrDuplicate, "idx_bookings_submission"},
		{"negative stock", quantity, apperrors.ErrBadRequest, "chk_resources_quantity"},
		{"missing contact", &pgconn.PgError{Code: "23502", ColumnName: "contact_id"}, apperrors.ErrBadRequest, "contact_id"},
		{"bad date", &pgconn.PgError{Code: "22P02", DataTypeName: "date"}, apperrors.ErrBadRequest, "date"},
		{"too long", &pgconn.PgError{Code: "22001", ColumnName: "notes"}, apperrors.ErrBadRequest, "notes"},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, apperrors.ErrDatabase, "40P01"},
		{"out of memory", &pgconn.PgError{Code: "53200"}, apperrors.ErrDatabase, "insufficient resources"},
		{"connection", &pgconn.PgError{Code: "08003"}, apperrors.ErrDatabase, "connection error"},
		{"internal", &pgconn.PgError{Code: "XX000"}, apperrors.ErrDatabase, "XX000"},
		{"plain", errors.New("pool exhausted"), apperrors.ErrDatabase, "pool exhausted"},
	}

	assert.NoError(t, checkConstraintViolation(nil))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkConstraintViolation(tc.in)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.in)
			assert.ErrorContains(t, err, tc.fragment)
		})
	}
}
