package config

const (
	// EnvPrefix is handed to envconfig; variable names carry the full
	// LETRENTS_ prefix in their struct tags so this stays empty.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LETRENTS_DB_DSN"
	EnvDBHost = "LETRENTS_DB_HOST"
	EnvDBUser = "LETRENTS_DB_USER"
	EnvDBName = "LETRENTS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
