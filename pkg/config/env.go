package config

// EnvPrefix is passed to envconfig; every field carries an explicit name so the
// prefix only matters for fields without an envconfig tag.
const EnvPrefix = "INTAKE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "INTAKE_APP_ENV"
	EnvPort     = "INTAKE_APP_PORT"
	EnvLogLevel = "INTAKE_LOG_LEVEL"

	EnvDBDSN  = "INTAKE_DB_DSN"
	EnvDBHost = "INTAKE_DB_HOST"
	EnvDBUser = "INTAKE_DB_USER"
	EnvDBName = "INTAKE_DB_NAME"

	EnvRedisURL = "INTAKE_REDIS_URL"

	EnvLogisticsAPIKey  = "INTAKE_LOGISTICS_API_KEY"
	EnvLogisticsBaseURL = "INTAKE_LOGISTICS_BASE_URL"

	EnvPropagationMinDelay = "INTAKE_PROPAGATION_STAGE_TWO_MIN_DELAY"
	EnvPropagationMaxDelay = "INTAKE_PROPAGATION_STAGE_TWO_MAX_DELAY"

	EnvMultiParcelThreshold = "INTAKE_STATS_MULTI_PARCEL_THRESHOLD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
