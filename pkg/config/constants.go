package config

const (
	EnvPrefix = "RESELLKART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "RESELLKART_DB_DSN"
	EnvDBHost = "RESELLKART_DB_HOST"
	EnvDBUser = "RESELLKART_DB_USER"
	EnvDBName = "RESELLKART_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
