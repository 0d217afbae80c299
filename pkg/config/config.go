package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Razorpay     RazorpayConfig
	Shiprocket   ShiprocketConfig
	Orders       OrdersConfig
	Wallet       WalletConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RESELLKART_APP_ENV" required:"true"`
	Port         string `envconfig:"RESELLKART_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RESELLKART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RESELLKART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RESELLKART_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"RESELLKART_DB_DSN"`
	Driver string `envconfig:"RESELLKART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RESELLKART_DB_HOST"`
	LegacyPort     int    `envconfig:"RESELLKART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RESELLKART_DB_USER"`
	LegacyPassword string `envconfig:"RESELLKART_DB_PASSWORD"`
	LegacyName     string `envconfig:"RESELLKART_DB_NAME"`
	LegacySSLMode  string `envconfig:"RESELLKART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RESELLKART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RESELLKART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RESELLKART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RESELLKART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RESELLKART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RESELLKART_REDIS_ADDR"`
	Password     string        `envconfig:"RESELLKART_REDIS_PASSWORD"`
	DB           int           `envconfig:"RESELLKART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RESELLKART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RESELLKART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RESELLKART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RESELLKART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RESELLKART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RESELLKART_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"RESELLKART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RESELLKART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"RESELLKART_PUBSUB_NOTIFICATION_TOPIC" default:"rk-notification-events"`
	NotificationSubscription string `envconfig:"RESELLKART_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"RESELLKART_RAZORPAY_KEY_ID" required:"true"`
	KeySecret     string `envconfig:"RESELLKART_RAZORPAY_KEY_SECRET" required:"true"`
	WebhookSecret string `envconfig:"RESELLKART_RAZORPAY_WEBHOOK_SECRET" required:"true"`
	BaseURL       string `envconfig:"RESELLKART_RAZORPAY_BASE_URL" default:"https://api.razorpay.com/v1"`
}

type ShiprocketConfig struct {
	Email        string        `envconfig:"RESELLKART_SHIPROCKET_EMAIL"`
	Password     string        `envconfig:"RESELLKART_SHIPROCKET_PASSWORD"`
	BaseURL      string        `envconfig:"RESELLKART_SHIPROCKET_BASE_URL" default:"https://apiv2.shiprocket.in/v1/external"`
	TokenTTL     time.Duration `envconfig:"RESELLKART_SHIPROCKET_TOKEN_TTL" default:"216h"`
	PickupName   string        `envconfig:"RESELLKART_SHIPROCKET_PICKUP_NAME" default:"Primary"`
	ChannelID    string        `envconfig:"RESELLKART_SHIPROCKET_CHANNEL_ID"`
	WebhookToken string        `envconfig:"RESELLKART_SHIPROCKET_WEBHOOK_TOKEN"`
}

type OrdersConfig struct {
	ReturnWindowDays           int           `envconfig:"RESELLKART_ORDERS_RETURN_WINDOW_DAYS" default:"7"`
	ShippingFreeThresholdPaise int64         `envconfig:"RESELLKART_ORDERS_SHIPPING_FREE_THRESHOLD_PAISE" default:"50000"`
	ShippingFeePaise           int64         `envconfig:"RESELLKART_ORDERS_SHIPPING_FEE_PAISE" default:"5000"`
	TaxRateBPS                 int64         `envconfig:"RESELLKART_ORDERS_TAX_RATE_BPS" default:"1800"`
	UnpaidTTL                  time.Duration `envconfig:"RESELLKART_ORDERS_UNPAID_TTL" default:"24h"`
}

type WalletConfig struct {
	MinWithdrawalPaise int64 `envconfig:"RESELLKART_WALLET_MIN_WITHDRAWAL_PAISE" default:"10000"`
}

type CronConfig struct {
	EarningMaturationInterval time.Duration `envconfig:"RESELLKART_CRON_EARNING_MATURATION_INTERVAL" default:"1h"`
	TrackingSyncInterval      time.Duration `envconfig:"RESELLKART_CRON_TRACKING_SYNC_INTERVAL" default:"30m"`
	UnpaidExpiryInterval      time.Duration `envconfig:"RESELLKART_CRON_UNPAID_EXPIRY_INTERVAL" default:"1h"`
	StaleCartInterval         time.Duration `envconfig:"RESELLKART_CRON_STALE_CART_INTERVAL" default:"24h"`
	StaleCartMaxAge           time.Duration `envconfig:"RESELLKART_CRON_STALE_CART_MAX_AGE" default:"720h"`
	LockTTL                   time.Duration `envconfig:"RESELLKART_CRON_LOCK_TTL" default:"5m"`
	TickInterval              time.Duration `envconfig:"RESELLKART_CRON_TICK_INTERVAL" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RESELLKART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RESELLKART_AUTO_MIGRATE" default:"false"`
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
