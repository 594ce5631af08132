package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"gitlab.com/careops/api/careops-orchestrator/internal/apperrors"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/observer"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
	"gitlab.com/careops/api/careops-orchestrator/pkg/utils"
)

const (
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
	readRetryMaxElapsedTime     = 5 * time.Second  // More aggressive for reads
	commitRetryMaxElapsedTime   = 15 * time.Second // More tolerant for commits
)

// SchemaPrefix prefixes the per-workspace Postgres schema.
const SchemaPrefix = "careops_"

// migratedModels are created by AutoMigrate, in dependency order.
var migratedModels = []interface{}{
	&model.Workspace{},
	&model.Integration{},
	&model.Service{},
	&model.AvailabilityConfig{},
	&model.Contact{},
	&model.Conversation{},
	&model.Message{},
	&model.Booking{},
	&model.AutomationStep{},
	&model.Resource{},
	&model.Alert{},
	&model.FormTemplate{},
	&model.FormSubmission{},
	&model.Reminder{},
	&model.ExhaustedEvent{},
}

// requiredTables must exist before the service accepts work.
var requiredTables = []string{
	"workspaces", "contacts", "conversations", "messages", "bookings",
	"automation_steps", "resources", "alerts", "reminders",
}

// newRetryPolicy creates a new exponential backoff policy with context awareness.
func newRetryPolicy(ctx context.Context, maxElapsedTime time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = maxElapsedTime
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// retryableOperation wraps a database operation with retry logic. Only
// transient errors are retried.
func retryableOperation(ctx context.Context, policy backoff.BackOffContext, opName string, operation func() error) error {
	notify := func(err error, d time.Duration) {
		logger.FromContext(ctx).Warn("Retrying DB operation",
			zap.String("operation", opName),
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	return backoff.RetryNotify(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) ||
			errors.Is(err, gorm.ErrInvalidTransaction) ||
			errors.Is(err, gorm.ErrDuplicatedKey) ||
			errors.Is(err, gorm.ErrForeignKeyViolated) {
			return backoff.Permanent(err)
		}
		if isTransientError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, notify)
}

// isTransientError checks if the error suggests a temporary issue like a network problem.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// See https://www.postgresql.org/docs/current/errcodes-appendix.html
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") || // connection exception
			strings.HasPrefix(pgErr.Code, "53") || // insufficient resources
			pgErr.Code == "40P01" || // deadlock
			pgErr.Code == "40001" { // serialization failure
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	transientIndicators := []string{
		"connection refused",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"connection reset by peer",
		"could not translate host name",
		"no route to host",
		"database system is starting up",
		"connection timed out",
		"connection reset",
	}
	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// PostgresRepo implements every repository of the service against one
// workspace schema.
type PostgresRepo struct {
	db          *gorm.DB
	workspaceID string
	schemaName  string
}

// tenantNamer qualifies every table with the workspace schema.
type tenantNamer struct {
	schema.NamingStrategy
	schemaName string
}

// TableName implements the schema.Namer interface, overriding the default.
func (tn tenantNamer) TableName(table string) string {
	return fmt.Sprintf("%q.%s", tn.schemaName, table)
}

// SchemaName returns the Postgres schema of a workspace.
func SchemaName(workspaceID string) string {
	return SchemaPrefix + workspaceID
}

func connectWithRetry(dsn string, cfg *gorm.Config, target string) (*gorm.DB, error) {
	operation := func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			if isTransientError(err) {
				logger.Log.Warn("Failed to connect to postgres (transient), retrying...", zap.String("target", target), zap.Error(err))
				return nil, err
			}
			return nil, backoff.Permanent(fmt.Errorf("failed to connect to postgres %s: %w", target, err))
		}
		return db, nil
	}

	notify := func(err error, d time.Duration) {
		logger.Log.Warn("Retrying DB connection", zap.String("target", target), zap.Error(err), zap.Duration("after", d))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 1 * time.Minute

	return backoff.RetryNotifyWithData(operation, b, notify)
}

func closeQuietly(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

// NewPostgresRepo connects, ensures the workspace schema exists and migrates it.
func NewPostgresRepo(dsn string, autoMigrate bool, workspaceID string) (*PostgresRepo, error) {
	dbDefault, err := connectWithRetry(dsn, &gorm.Config{}, "default")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to default postgres after retries: %w", err)
	}

	schemaName := SchemaName(workspaceID)
	logger.Log.Info("Ensuring PostgreSQL schema exists", zap.String("schema", schemaName))
	if err := dbDefault.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schemaName)).Error; err != nil {
		closeQuietly(dbDefault)
		return nil, fmt.Errorf("failed to create schema %s: %w", schemaName, err)
	}
	closeQuietly(dbDefault)

	db, err := connectWithRetry(dsn, &gorm.Config{
		NamingStrategy: tenantNamer{schemaName: schemaName},
	}, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres workspace db %s after retries: %w", schemaName, err)
	}

	repo := &PostgresRepo{db: db, workspaceID: workspaceID, schemaName: schemaName}

	if autoMigrate {
		logger.Log.Info("Running auto-migration for schema", zap.String("schema", schemaName))
		if err := db.AutoMigrate(migratedModels...); err != nil {
			logger.Log.Error("Auto-migration failed or produced errors", zap.Error(err), zap.String("schema", schemaName))
		}
	} else {
		logger.Log.Info("Auto-migration disabled")
	}

	for _, table := range requiredTables {
		exists, err := tableExists(db, schemaName, table)
		if err != nil {
			closeQuietly(db)
			return nil, fmt.Errorf("failed to check for '%s' table in schema %s: %w", table, schemaName, err)
		}
		if !exists {
			closeQuietly(db)
			return nil, fmt.Errorf("'%s' table does not exist in schema %s", table, schemaName)
		}
	}
	logger.Log.Debug("Workspace tables verified", zap.String("schema", schemaName))

	return repo, nil
}

func tableExists(db *gorm.DB, schemaName, table string) (bool, error) {
	var exists bool
	checkSQL := `SELECT EXISTS ( SELECT FROM information_schema.tables WHERE table_schema = ? AND table_name = ? )`
	if err := db.Raw(checkSQL, schemaName, table).Scan(&exists).Error; err != nil {
		return false, err
	}
	return exists, nil
}

// Ping checks the connection for readiness probes.
func (r *PostgresRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

// Close closes the database connection
func (r *PostgresRepo) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to get underlying SQL DB for closing", zap.Error(err))
		return nil
	}

	if closeErr := sqlDB.Close(); closeErr != nil {
		logger.FromContext(ctx).Error("Failed to close database connection", zap.Error(closeErr))
		return fmt.Errorf("failed to close SQL DB: %w", closeErr)
	}

	logger.FromContext(ctx).Info("Database connection closed successfully")
	return nil
}

// scope returns the workspace of ctx, which must be the workspace this repo serves.
func (r *PostgresRepo) scope(ctx context.Context) (string, error) {
	workspaceID, err := tenant.FromContext(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to get workspace ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if r.workspaceID != "" && workspaceID != r.workspaceID {
		return "", fmt.Errorf("%w: context workspace %s does not match repository workspace %s", apperrors.ErrUnauthorized, workspaceID, r.workspaceID)
	}
	return workspaceID, nil
}

// withTx runs fn in a transaction under the commit retry policy. fn must return
// errors already mapped to apperrors.
func (r *PostgresRepo) withTx(ctx context.Context, opName, entity string, fn func(tx *gorm.DB) error) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		if txErr = fn(tx); txErr != nil {
			return txErr
		}
		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit %s: %w", apperrors.ErrDatabase, opName, commitErr)
			return txErr
		}
		return nil
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), opName, operation)
	observer.ObserveDbOperationDuration(opName, entity, workspaceID, time.Since(startTime), err)
	if err != nil && !apperrors.IsNotFoundError(err) {
		logger.FromContext(ctx).Error("DB transaction failed after retries", zap.String("operation", opName), zap.Error(err))
	}
	return err
}

// withRead runs a read under the read retry policy.
func (r *PostgresRepo) withRead(ctx context.Context, opName, entity string, fn func(db *gorm.DB) error) error {
	workspaceID, err := r.scope(ctx)
	if err != nil {
		return err
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), opName, func() error {
		return fn(r.db.WithContext(ctx))
	})
	observer.ObserveDbOperationDuration(opName, entity, workspaceID, time.Since(startTime), err)
	return err
}

// notFoundOr maps gorm.ErrRecordNotFound to apperrors.ErrNotFound and other
// errors through checkConstraintViolation.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrNotFound, what, err)
	}
	return checkConstraintViolation(err)
}

// checkConstraintViolation inspects database errors and maps them to standard apperrors.
func checkConstraintViolation(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// Class 23: Integrity Constraint Violation
		case "23505": // unique_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrDuplicate, pgErr.ConstraintName, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrBadRequest, pgErr.ConstraintName, err)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: null value in column %s: %w", apperrors.ErrBadRequest, pgErr.ColumnName, err)
		case "23514": // check_violation
			return fmt.Errorf("%w: constraint %s: %w", apperrors.ErrBadRequest, pgErr.ConstraintName, err)

		// Class 22: Data Exception
		case "22001": // string_data_right_truncation
			return fmt.Errorf("%w: value too long for column %s: %w", apperrors.ErrBadRequest, pgErr.ColumnName, err)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("%w: invalid input syntax for type %s: %w", apperrors.ErrBadRequest, pgErr.DataTypeName, err)

		// Class 40: Transaction Rollback
		case "40001", "40P01":
			return fmt.Errorf("%w: transaction rollback (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)

		default:
			if strings.HasPrefix(pgErr.Code, "53") {
				return fmt.Errorf("%w: insufficient resources (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
			}
			if strings.HasPrefix(pgErr.Code, "08") {
				return fmt.Errorf("%w: connection error (%s): %w", apperrors.ErrDatabase, pgErr.Code, err)
			}
			return fmt.Errorf("%w: unhandled pgcode %s: %w", apperrors.ErrDatabase, pgErr.Code, err)
		}
	}

	return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
}
