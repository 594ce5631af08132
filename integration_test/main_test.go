//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"gitlab.com/careops/api/careops-orchestrator/internal/app"
	"gitlab.com/careops/api/careops-orchestrator/internal/config"
	"gitlab.com/careops/api/careops-orchestrator/internal/model"
	"gitlab.com/careops/api/careops-orchestrator/internal/storage"
	"gitlab.com/careops/api/careops-orchestrator/internal/tenant"
	"gitlab.com/careops/api/careops-orchestrator/pkg/logger"
)

const (
	DefaultWorkspaceID = "itestworkspace"
	DefaultServiceID   = "svc-consult"

	postgresImage = "postgres:15-alpine"
	natsImage     = "nats:2.10-alpine"
	redisImage    = "redis:7-alpine"
)

// perTestTables are emptied before every test. Workspace configuration
// (services, availability, integrations) survives for the whole suite.
var perTestTables = []string{
	"automation_steps",
	"reminders",
	"form_submissions",
	"messages",
	"conversations",
	"bookings",
	"contacts",
	"alerts",
	"resources",
	"exhausted_events",
}

// BaseIntegrationSuite starts Postgres, NATS and Redis once and runs the whole
// orchestrator in-process against them.
type BaseIntegrationSuite struct {
	suite.Suite

	Postgres    testcontainers.Container
	PostgresDSN string
	NATS        testcontainers.Container
	NATSURL     string
	Redis       testcontainers.Container
	RedisHost   string
	RedisPort   int

	WorkspaceID string
	Config      *config.Config
	App         *app.App
	APIURL      string

	db     *sql.DB
	Ctx    context.Context
	cancel context.CancelFunc
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(BaseIntegrationSuite))
}

// SetupSuite runs once before the tests in the suite are run.
func (s *BaseIntegrationSuite) SetupSuite() {
	s.Ctx, s.cancel = context.WithCancel(context.Background())
	logger.Log = zaptest.NewLogger(s.T()).Named("integration")
	s.WorkspaceID = DefaultWorkspaceID

	startTime := time.Now()
	var err error

	s.Postgres, s.PostgresDSN, err = startPostgres(s.Ctx)
	s.Require().NoError(err, "failed to start postgres")
	log.Println("PostgreSQL container started.")

	s.NATS, s.NATSURL, err = startNATS(s.Ctx)
	s.Require().NoError(err, "failed to start NATS")
	log.Println("NATS container started.")

	s.Redis, s.RedisHost, s.RedisPort, err = startRedis(s.Ctx)
	s.Require().NoError(err, "failed to start redis")
	log.Println("Redis container started.")

	s.Config, err = s.loadConfig()
	s.Require().NoError(err, "failed to load config")

	s.App, err = app.New(s.Config, logger.Log, "integration")
	s.Require().NoError(err, "failed to build orchestrator")
	s.Require().NoError(s.App.Start(s.Ctx), "failed to start orchestrator")
	s.APIURL = fmt.Sprintf("http://localhost:%d/api/v1", s.Config.Server.Port)

	s.db, err = sql.Open("pgx", s.PostgresDSN)
	s.Require().NoError(err)

	s.configureWorkspace()

	log.Printf("BaseIntegrationSuite setup complete in %v", time.Since(startTime))
}

// TearDownSuite runs once after all tests in the suite have finished.
func (s *BaseIntegrationSuite) TearDownSuite() {
	log.Println("Tearing down BaseIntegrationSuite...")

	if s.App != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		s.App.Shutdown(ctx)
		cancel()
	}
	if s.db != nil {
		_ = s.db.Close()
	}

	for name, c := range map[string]testcontainers.Container{"redis": s.Redis, "nats": s.NATS, "postgres": s.Postgres} {
		if c == nil {
			continue
		}
		if err := c.Terminate(context.Background()); err != nil {
			s.T().Logf("Error terminating %s container: %v", name, err)
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
}

// SetupTest empties the per-test tables and drops cached projections.
func (s *BaseIntegrationSuite) SetupTest() {
	schemaName := storage.SchemaName(s.WorkspaceID)
	tables := make([]string, 0, len(perTestTables))
	for _, t := range perTestTables {
		tables = append(tables, fmt.Sprintf("%q.%q", schemaName, t))
	}
	_, err := s.db.ExecContext(s.Ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	s.Require().NoError(err, "failed to truncate tables")

	s.Require().NoError(s.App.Redis.Redis().FlushDB(s.Ctx).Err())
}

// Scoped returns a context carrying the suite workspace.
func (s *BaseIntegrationSuite) Scoped() context.Context {
	ctx := tenant.WithWorkspaceID(s.Ctx, s.WorkspaceID)
	return tenant.WithRequestID(ctx, "itest-"+time.Now().Format("150405.000000"))
}

func (s *BaseIntegrationSuite) loadConfig() (*config.Config, error) {
	s.T().Setenv("POSTGRES_DSN", s.PostgresDSN)
	s.T().Setenv("NATS_URL", s.NATSURL)
	s.T().Setenv("REDIS_HOST", s.RedisHost)
	s.T().Setenv("WORKSPACE_ID", s.WorkspaceID)

	cfg, err := config.LoadConfig("../internal/config")
	if err != nil {
		return nil, err
	}
	cfg.Redis.Port = s.RedisPort
	if cfg.Server.Port, err = freePort(); err != nil {
		return nil, err
	}
	if cfg.Server.HealthPort, err = freePort(); err != nil {
		return nil, err
	}
	cfg.Database.PostgresAutoMigrate = true
	cfg.Metrics.Enabled = false
	cfg.Automation.EnforceAvailability = true
	cfg.Automation.SweepInterval = time.Hour
	return cfg, nil
}

// configureWorkspace connects email, adds one service, opens every weekday and
// activates the workspace.
func (s *BaseIntegrationSuite) configureWorkspace() {
	ctx := s.Scoped()

	_, err := s.App.Workspace.SetIntegration(ctx, model.ChannelEmail, true, "itest")
	s.Require().NoError(err)

	_, err = s.App.Workspace.UpsertService(ctx, *model.NewService(&model.Service{
		ID:       DefaultServiceID,
		Name:     "Consultation",
		Duration: 30,
		Location: "Main Office",
	}))
	s.Require().NoError(err)

	_, err = s.App.Workspace.SetAvailability(ctx, model.AvailabilityConfig{
		DaysOfWeek: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"},
		TimeSlots:  []string{"9:00 AM", "10:00 AM", "2:00 PM"},
	})
	s.Require().NoError(err)

	result, err := s.App.Activation.ActivateWorkspace(ctx)
	s.Require().NoError(err)
	s.Require().True(result.Activated || result.AlreadyActive, "workspace should activate, missing %v", result.Missing)
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "careops",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, "", err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return container, "", err
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/careops?sslmode=disable", host, port.Port())
	return container, dsn, nil
}

func startNATS(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        natsImage,
		ExposedPorts: []string{"4222/tcp"},
		Cmd:          []string{"-js"},
		WaitingFor: wait.ForLog("Server is ready").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, "", err
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		return container, "", err
	}
	return container, fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}

func startRedis(ctx context.Context) (testcontainers.Container, string, int, error) {
	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", 0, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return container, "", 0, err
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		return container, "", 0, err
	}
	return container, host, port.Int(), nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
