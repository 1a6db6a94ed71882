package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	StorageDriver     string        `env:"STORAGE_DRIVER" envDefault:"redis"`
	Postgres          Postgres
	Telegram          Telegram
	Redis             Redis
	API               API
	Dividends         Dividends
	Jobs              Jobs
	GoogleDrive       GoogleDrive
	SessionExpiration time.Duration `env:"SESSION_EXPIRATION" envDefault:"30m"`
}

type Postgres struct {
	Host            string `env:"PG_HOST" envDefault:"localhost"`
	Port            int    `env:"PG_PORT" envDefault:"5432"`
	DbName          string `env:"PG_DB_NAME" envDefault:"dividend_tracker"`
	Password        string `env:"PG_PASSWORD" envDefault:""`
	User            string `env:"PG_USER" envDefault:"postgres"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME" envDefault:"300"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME" envDefault:"60"`
	MigrationDir    string `env:"PG_MIGRATION_DIR" envDefault:"migrations"`
}

type Telegram struct {
	Token            string        `env:"TELEGRAM_TOKEN"`
	UpdTimeout       time.Duration `env:"TELEGRAM_UPD_TIMEOUT" envDefault:"10s"`
	FileLimitInBytes int           `env:"TELEGRAM_FILE_LIMIT_IN_BYTES" envDefault:"1048576"`
	// chats allowed to use the bot, comma separated
	AllowedChatIDs []int64 `env:"TELEGRAM_ALLOWED_CHAT_IDS" envSeparator:","`
}

type Redis struct {
	Host      string `env:"REDIS_HOST" envDefault:"localhost"`
	Port      int    `env:"REDIS_PORT" envDefault:"6379"`
	Password  string `env:"REDIS_PASSWORD" envDefault:""`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"dividend-tracker:"`
}

type API struct {
	Debug          bool          `env:"API_DEBUG" envDefault:"false"`
	Timeout        time.Duration `env:"API_TIMEOUT" envDefault:"15s"`
	MaxConcurrency int           `env:"API_MAX_CONCURRENCY" envDefault:"4"`
	Polygon        Polygon
}

type Polygon struct {
	Url    string `env:"POLYGON_API_URL" envDefault:"https://api.polygon.io"`
	ApiKey string `env:"POLYGON_API_KEY"`
}

type Dividends struct {
	MonthsBack int `env:"DIVIDENDS_MONTHS_BACK" envDefault:"12"`
}

type Jobs struct {
	RefreshQuotesInterval    time.Duration `env:"REFRESH_QUOTES_JOB_INTERVAL" envDefault:"1h"`
	RefreshDividendsInterval time.Duration `env:"REFRESH_DIVIDENDS_JOB_INTERVAL" envDefault:"24h"`
	DeleteOldFilesInterval   time.Duration `env:"DELETE_OLD_FILES_JOB_INTERVAL" envDefault:"24h"`
}

type GoogleDrive struct {
	Enabled         bool          `env:"GOOGLE_DRIVE_ENABLED" envDefault:"false"`
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE" envDefault:""`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL" envDefault:"168h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.StorageDriver {
	case StorageRedis, StoragePostgres, StorageMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.Dividends.MonthsBack <= 0 {
		return nil, fmt.Errorf("DIVIDENDS_MONTHS_BACK must be positive, got %d", cfg.Dividends.MonthsBack)
	}

	if len(cfg.Telegram.AllowedChatIDs) == 0 {
		return nil, fmt.Errorf("TELEGRAM_ALLOWED_CHAT_IDS must list at least one chat")
	}

	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"REFRESH_QUOTES_JOB_INTERVAL", cfg.Jobs.RefreshQuotesInterval},
		{"REFRESH_DIVIDENDS_JOB_INTERVAL", cfg.Jobs.RefreshDividendsInterval},
		{"DELETE_OLD_FILES_JOB_INTERVAL", cfg.Jobs.DeleteOldFilesInterval},
		{"SESSION_EXPIRATION", cfg.SessionExpiration},
	}
	for _, interval := range intervals {
		if interval.value <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", interval.name, interval.value)
		}
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("parse config error: %s", err)
	}
	return cfg
}
