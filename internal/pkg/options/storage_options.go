package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

// SQLiteOptions configures the embedded database.
type SQLiteOptions struct {
	Path string `json:"path" mapstructure:"path"`
}

func NewSQLiteOptions() *SQLiteOptions {
	return &SQLiteOptions{Path: "prompthub.db"}
}

func (o *SQLiteOptions) Validate() []error {
	var errs []error
	if o.Path == "" {
		errs = append(errs, fmt.Errorf("sqlite path must not be empty"))
	}
	return errs
}

func (o *SQLiteOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Path, "sqlite.path", o.Path, "Path to the sqlite database file.")
}

// RedisOptions configures the resolve-cache backend. Disabled means resolves
// are always recomputed.
type RedisOptions struct {
	Enabled  bool   `json:"enabled"  mapstructure:"enabled"`
	Addr     string `json:"addr"     mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db"       mapstructure:"db"`
}

func NewRedisOptions() *RedisOptions {
	return &RedisOptions{Enabled: true, Addr: "127.0.0.1:6379"}
}

func (o *RedisOptions) Validate() []error {
	var errs []error
	if o.Enabled && o.Addr == "" {
		errs = append(errs, fmt.Errorf("redis addr must not be empty when redis is enabled"))
	}
	return errs
}

func (o *RedisOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "redis.enabled", o.Enabled, "Enable the redis resolve cache.")
	fs.StringVar(&o.Addr, "redis.addr", o.Addr, "Redis server address.")
	fs.StringVar(&o.Password, "redis.password", o.Password, "Redis password.")
	fs.IntVar(&o.DB, "redis.db", o.DB, "Redis database number.")
}
