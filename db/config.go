package db

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nnthruslpn/telegram-bot/internal/statepaths"
)

type SQLiteConfig struct {
	BusyTimeoutMs int
	WAL           bool
	ForeignKeys   bool
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Config struct {
	Driver      string
	DSN         string
	Pool        PoolConfig
	SQLite      SQLiteConfig
	AutoMigrate bool
}

func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		DSN:    "",
		Pool: PoolConfig{
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 0,
		},
		SQLite: SQLiteConfig{
			BusyTimeoutMs: 5000,
			WAL:           true,
			ForeignKeys:   true,
		},
		AutoMigrate: true,
	}
}

func ConfigFromViper() Config {
	cfg := DefaultConfig()
	if dsn := strings.TrimSpace(viper.GetString("db.dsn")); dsn != "" {
		cfg.DSN = dsn
	}
	if viper.IsSet("db.auto_migrate") {
		cfg.AutoMigrate = viper.GetBool("db.auto_migrate")
	}
	if viper.IsSet("db.sqlite.busy_timeout_ms") {
		cfg.SQLite.BusyTimeoutMs = viper.GetInt("db.sqlite.busy_timeout_ms")
	}
	return cfg
}

// ResolveSQLiteDSN defaults the journal database next to the task state file.
func ResolveSQLiteDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn != "" {
		return dsn, nil
	}
	return statepaths.JournalPath(), nil
}
