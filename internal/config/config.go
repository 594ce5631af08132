package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata" // workspace timezones must resolve in slim images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Deduction triggers for linked inventory.
const (
	DeductOnCompleted = "completed"
	DeductOnSubmitted = "submitted"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		HealthPort      int           `mapstructure:"healthPort"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`
	NATS struct {
		URL                 string             `mapstructure:"url"`
		Events              ConsumerNatsConfig `mapstructure:"events"`
		OutboundStream      string             `mapstructure:"outboundStream"`
		OutboundMaxAgeDays  int                `mapstructure:"outboundMaxAgeDays"`
		DLQStream           string             `mapstructure:"dlqStream"`
		DLQSubject          string             `mapstructure:"dlqSubject"`
		DLQWorkers          int                `mapstructure:"dlqWorkers"`
		DLQBaseDelayMinutes int                `mapstructure:"dlqBaseDelayMinutes"`
		DLQMaxDelayMinutes  int                `mapstructure:"dlqMaxDelayMinutes"`
		DLQMaxAgeDays       int                `mapstructure:"dlqMaxAgeDays"`
		DLQMaxDeliver       int                `mapstructure:"dlqMaxDeliver"`
		DLQMaxRetries       int                `mapstructure:"dlqMaxRetries"`
		DLQAckWait          time.Duration      `mapstructure:"dlqAckWait"`
		DLQMaxAckPending    int                `mapstructure:"dlqMaxAckPending"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Redis     RedisConfig `mapstructure:"redis"`
	Workspace struct {
		ID       string `mapstructure:"id"`
		Name     string `mapstructure:"name"`
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"workspace"`
	Automation AutomationConfig `mapstructure:"automation"`
	Cache      struct {
		SnapshotTTL  time.Duration `mapstructure:"snapshotTTL"`
		DashboardTTL time.Duration `mapstructure:"dashboardTTL"`
	} `mapstructure:"cache"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Delivery WorkerPoolConfig `mapstructure:"delivery"`
	} `mapstructure:"workerPools"`
}

// RedisConfig holds the connection settings of the read-through cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AutomationConfig tunes the booking workflow and the alert evaluators.
type AutomationConfig struct {
	EnforceAvailability bool          `mapstructure:"enforceAvailability"`
	DeductOn            string        `mapstructure:"deductOn"` // completed | submitted
	SweepInterval       time.Duration `mapstructure:"sweepInterval"`
	FormOverdueAfter    time.Duration `mapstructure:"formOverdueAfter"`
	FormCriticalAfter   time.Duration `mapstructure:"formCriticalAfter"`
	SweepLockTTL        time.Duration `mapstructure:"sweepLockTTL"`
	StepStaleAfter      time.Duration `mapstructure:"stepStaleAfter"` // running steps older than this can be claimed again
}

// WorkerPoolConfig holds configuration for an ants worker pool
type WorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Max blocked submitters before Invoke fails
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to wait for a free worker
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in days
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name prefix
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"`
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`
}

// LoadConfig reads .env (if present), then default.yaml, then environment overrides.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("default")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.careops")
	v.AddConfigPath("/etc/careops")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	// Direct overrides for the values deploy tooling sets most often.
	for env, key := range map[string]string{
		"POSTGRES_DSN": "database.postgresDSN",
		"LOG_LEVEL":    "logLevel",
		"NATS_URL":     "nats.url",
		"REDIS_HOST":   "redis.host",
		"WORKSPACE_ID": "workspace.id",
	} {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.healthPort", 8081)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.events.stream", "careops_events")
	v.SetDefault("nats.events.consumer", "careops_orchestrator")
	v.SetDefault("nats.events.group", "careops_orchestrator")
	v.SetDefault("nats.events.maxAge", 7)
	v.SetDefault("nats.events.maxDeliver", 5)
	v.SetDefault("nats.events.nakBaseDelay", time.Second)
	v.SetDefault("nats.events.nakMaxDelay", 5*time.Minute)
	v.SetDefault("nats.events.subjectList", []string{
		"careops.v1.public.bookings",
		"careops.v1.public.contacts",
		"careops.v1.inbound.messages",
		"careops.v1.reminders.fired",
	})

	v.SetDefault("nats.outboundStream", "careops_outbound")
	v.SetDefault("nats.outboundMaxAgeDays", 3)

	v.SetDefault("nats.dlqStream", "careops_dlq")
	v.SetDefault("nats.dlqSubject", "careops.v1.dlq")
	v.SetDefault("nats.dlqWorkers", 8)
	v.SetDefault("nats.dlqBaseDelayMinutes", 1)
	v.SetDefault("nats.dlqMaxDelayMinutes", 15)
	v.SetDefault("nats.dlqMaxAgeDays", 7)
	v.SetDefault("nats.dlqMaxDeliver", 10)
	v.SetDefault("nats.dlqMaxRetries", 5)
	v.SetDefault("nats.dlqAckWait", 30*time.Second)
	v.SetDefault("nats.dlqMaxAckPending", 1000)

	v.SetDefault("database.postgresAutoMigrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("workspace.timezone", "UTC")

	v.SetDefault("automation.enforceAvailability", true)
	v.SetDefault("automation.deductOn", DeductOnCompleted)
	v.SetDefault("automation.sweepInterval", 5*time.Minute)
	v.SetDefault("automation.formOverdueAfter", 48*time.Hour)
	v.SetDefault("automation.formCriticalAfter", 96*time.Hour)
	v.SetDefault("automation.sweepLockTTL", time.Minute)
	v.SetDefault("automation.stepStaleAfter", 5*time.Minute)

	v.SetDefault("cache.snapshotTTL", 10*time.Minute)
	v.SetDefault("cache.dashboardTTL", 30*time.Second)

	v.SetDefault("workerPools.delivery.poolSize", 16)
	v.SetDefault("workerPools.delivery.queueSize", 10000)
	v.SetDefault("workerPools.delivery.maxBlock", time.Second)
	v.SetDefault("workerPools.delivery.expiryTime", time.Minute)
}

func (c *Config) validate() error {
	if c.Workspace.ID == "" {
		return errors.New("workspace.id is required (set WORKSPACE_ID)")
	}
	if _, err := time.LoadLocation(c.Workspace.Timezone); err != nil {
		return fmt.Errorf("invalid workspace.timezone %q: %w", c.Workspace.Timezone, err)
	}
	switch c.Automation.DeductOn {
	case DeductOnCompleted, DeductOnSubmitted:
	default:
		return fmt.Errorf("invalid automation.deductOn %q", c.Automation.DeductOn)
	}
	if c.Automation.StepStaleAfter <= 0 {
		return fmt.Errorf("automation.stepStaleAfter must be positive, got %s", c.Automation.StepStaleAfter)
	}
	return nil
}

// Location returns the workspace timezone. validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Workspace.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}
		_ = v.BindEnv(key)
	}
}
