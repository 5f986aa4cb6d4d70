package config

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "rafflebox"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "RAFFLEBOX_APP_ENV"
	EnvPort      = "RAFFLEBOX_APP_PORT"
	EnvJWTSecret = "RAFFLEBOX_JWT_SECRET"

	EnvDBDSN  = "RAFFLEBOX_DB_DSN"
	EnvDBHost = "RAFFLEBOX_DB_HOST"
	EnvDBUser = "RAFFLEBOX_DB_USER"
	EnvDBName = "RAFFLEBOX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
