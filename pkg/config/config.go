package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	Service     ServiceConfig
	HTTP        HTTPConfig
	DB          DBConfig
	Redis       RedisConfig
	Logistics   LogisticsConfig
	Propagation PropagationConfig
	Sessions    SessionsConfig
	Stats       StatsConfig
	Cron        CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Propagation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INTAKE_APP_ENV" required:"true"`
	Port         string `envconfig:"INTAKE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"INTAKE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"INTAKE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"INTAKE_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"INTAKE_SERVICE_KIND" default:"api"`
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"INTAKE_HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	ShutdownTimeout time.Duration `envconfig:"INTAKE_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	ReadTimeout     time.Duration `envconfig:"INTAKE_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"INTAKE_HTTP_WRITE_TIMEOUT" default:"30s"`

	RateLimitWindow     time.Duration `envconfig:"INTAKE_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	ScanIPLimit         int           `envconfig:"INTAKE_HTTP_SCAN_IP_LIMIT" default:"600"`
	ScanOperatorLimit   int           `envconfig:"INTAKE_HTTP_SCAN_OPERATOR_LIMIT" default:"240"`
	IngestIPLimit       int           `envconfig:"INTAKE_HTTP_INGEST_IP_LIMIT" default:"30"`
	IngestOperatorLimit int           `envconfig:"INTAKE_HTTP_INGEST_OPERATOR_LIMIT" default:"10"`
	MaxIngestBodyBytes  int64         `envconfig:"INTAKE_HTTP_MAX_INGEST_BODY_BYTES" default:"10485760"`
}

type DBConfig struct {
	DSN string `envconfig:"INTAKE_DB_DSN"`

	LegacyHost     string `envconfig:"INTAKE_DB_HOST"`
	LegacyPort     int    `envconfig:"INTAKE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INTAKE_DB_USER"`
	LegacyPassword string `envconfig:"INTAKE_DB_PASSWORD"`
	LegacyName     string `envconfig:"INTAKE_DB_NAME"`
	LegacySSLMode  string `envconfig:"INTAKE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INTAKE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INTAKE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INTAKE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INTAKE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"INTAKE_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INTAKE_REDIS_URL"`
	Address      string        `envconfig:"INTAKE_REDIS_ADDR"`
	Password     string        `envconfig:"INTAKE_REDIS_PASSWORD"`
	DB           int           `envconfig:"INTAKE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INTAKE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INTAKE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INTAKE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INTAKE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INTAKE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// LogisticsConfig points at the external logistics status webhook. An empty
// APIKey leaves propagation as a logged no-op.
type LogisticsConfig struct {
	BaseURL string        `envconfig:"INTAKE_LOGISTICS_BASE_URL" default:"https://logistics.example.com/api"`
	APIKey  string        `envconfig:"INTAKE_LOGISTICS_API_KEY"`
	Timeout time.Duration `envconfig:"INTAKE_LOGISTICS_TIMEOUT" default:"10s"`
}

func (l LogisticsConfig) Enabled() bool {
	return strings.TrimSpace(l.APIKey) != ""
}

type PropagationConfig struct {
	StageTwoMinDelay  time.Duration `envconfig:"INTAKE_PROPAGATION_STAGE_TWO_MIN_DELAY" default:"20m"`
	StageTwoMaxDelay  time.Duration `envconfig:"INTAKE_PROPAGATION_STAGE_TWO_MAX_DELAY" default:"40m"`
	StageThreeDelay   time.Duration `envconfig:"INTAKE_PROPAGATION_STAGE_THREE_DELAY" default:"1s"`
	PollInterval      time.Duration `envconfig:"INTAKE_PROPAGATION_POLL_INTERVAL" default:"1s"`
	BatchSize         int           `envconfig:"INTAKE_PROPAGATION_BATCH_SIZE" default:"25"`
	InlineDispatcher  bool          `envconfig:"INTAKE_PROPAGATION_INLINE_DISPATCHER" default:"true"`
	StaleRunningAfter time.Duration `envconfig:"INTAKE_PROPAGATION_STALE_RUNNING_AFTER" default:"10m"`
	Retention         time.Duration `envconfig:"INTAKE_PROPAGATION_RETENTION" default:"720h"`
}

func (p PropagationConfig) validate() error {
	if p.StageTwoMinDelay < 0 || p.StageTwoMaxDelay < p.StageTwoMinDelay {
		return fmt.Errorf("%s must not exceed %s", EnvPropagationMinDelay, EnvPropagationMaxDelay)
	}
	return nil
}

type SessionsConfig struct {
	IdleTimeout time.Duration `envconfig:"INTAKE_SESSIONS_IDLE_TIMEOUT" default:"12h"`
}

type StatsConfig struct {
	MultiParcelThreshold int `envconfig:"INTAKE_STATS_MULTI_PARCEL_THRESHOLD" default:"1"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"INTAKE_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
