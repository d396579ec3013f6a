package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver     string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"file:data/portfolio.db"`
	BackupDir    string `env:"BACKUP_DIR" envDefault:"data/backups"`
	BaseCurrency string `env:"BASE_CURRENCY" envDefault:"NOK"`
	RawDir       string `env:"RAW_DIR" envDefault:"data/raw"`
	ArchiveDir   string `env:"ARCHIVE_DIR" envDefault:"data/archive"`
	TaxonomyFile string `env:"TAXONOMY_FILE"`

	MarketDataURL      string  `env:"MARKET_DATA_URL" envDefault:"http://localhost:8081"`
	MarketDataAPIKey   string  `env:"MARKET_DATA_API_KEY"`
	MarketDataRPS      float64 `env:"MARKET_DATA_RPS" envDefault:"5"`
	MarketDataTimeoutS int     `env:"MARKET_DATA_TIMEOUT_S" envDefault:"10"`
	PriceCacheTTLS     int     `env:"PRICE_CACHE_TTL_S" envDefault:"300"`
	StalePriceDays     int     `env:"STALE_PRICE_DAYS" envDefault:"3"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	Taxonomy *Taxonomy `env:"-"`
}

// Load reads an optional .env file, then the process environment, then the
// transaction taxonomy.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: dotenv: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg.BaseCurrency = strings.ToUpper(cfg.BaseCurrency)
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("config.Load: unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	tax := DefaultTaxonomy()
	if cfg.TaxonomyFile != "" {
		tax, err = LoadTaxonomy(cfg.TaxonomyFile)
		if err != nil {
			return nil, fmt.Errorf("config.Load: %w", err)
		}
	}
	cfg.Taxonomy = tax

	return &cfg, nil
}
