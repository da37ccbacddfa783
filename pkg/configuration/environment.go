package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"registrar"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"registrar"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

// RateLimitOptions bounds outbound calls to the membership registry.
type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"5"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type JobsOptions struct {
	RunnerEnabled         bool          `env:"JOBS_RUNNER_ENABLED" envDefault:"true"`
	RunnerQueues          string        `env:"JOBS_RUNNER_QUEUES" envDefault:"default"`
	RunnerPollInterval    time.Duration `env:"JOBS_RUNNER_POLL_INTERVAL" envDefault:"1s"`
	RunnerBatchSize       int           `env:"JOBS_RUNNER_BATCH_SIZE" envDefault:"10"`
	RunnerLockTTL         time.Duration `env:"JOBS_RUNNER_LOCK_TTL" envDefault:"5m"`
	RunnerSingleActive    bool          `env:"JOBS_RUNNER_SINGLE_ACTIVE" envDefault:"false"`
	RunnerDispatchTimeout time.Duration `env:"JOBS_RUNNER_DISPATCH_TIMEOUT" envDefault:"2m"`
	RunnerMaxBackoff      time.Duration `env:"JOBS_RUNNER_MAX_BACKOFF" envDefault:"5m"`

	LastErrorMaxBytes int `env:"JOBS_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	SchedulerEnabled bool `env:"JOBS_SCHEDULER_ENABLED" envDefault:"true"`

	CleanerEnabled   bool          `env:"JOBS_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval  time.Duration `env:"JOBS_CLEANER_INTERVAL" envDefault:"1h"`
	CleanerRetention time.Duration `env:"JOBS_CLEANER_RETENTION" envDefault:"168h"`
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	Jobs          JobsOptions
	Registry      RegistryOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	// Looked up on incoming requests; a random uuid is generated when absent.
	RequestIDHeader string   `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	CORSOrigins     []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	// Registry settings are checked when a step needs them, not here.
	if err := c.Registry.validateFormat(); err != nil {
		return fmt.Errorf("registry configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
