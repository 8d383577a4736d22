// Package options aggregates the flag groups of the prompthub server.
package options

import (
	"github.com/spf13/pflag"

	genericoptions "github.com/prompthub/prompthub/internal/pkg/options"
	"github.com/prompthub/prompthub/pkg/utils/json"
)

// Options is the full set of configurable knobs.
type Options struct {
	GenericServerRunOptions *genericoptions.ServerRunOptions `json:"server"  mapstructure:"server"`
	SQLiteOptions           *genericoptions.SQLiteOptions    `json:"sqlite"  mapstructure:"sqlite"`
	RedisOptions            *genericoptions.RedisOptions     `json:"redis"   mapstructure:"redis"`
	CacheOptions            *genericoptions.CacheOptions     `json:"cache"   mapstructure:"cache"`
	CallLogOptions          *genericoptions.CallLogOptions   `json:"calllog" mapstructure:"calllog"`
	APIOptions              *genericoptions.APIOptions       `json:"api"     mapstructure:"api"`
	LogOptions              *genericoptions.LogOptions       `json:"log"     mapstructure:"log"`
}

// NewOptions returns defaults for every group.
func NewOptions() *Options {
	return &Options{
		GenericServerRunOptions: genericoptions.NewServerRunOptions(),
		SQLiteOptions:           genericoptions.NewSQLiteOptions(),
		RedisOptions:            genericoptions.NewRedisOptions(),
		CacheOptions:            genericoptions.NewCacheOptions(),
		CallLogOptions:          genericoptions.NewCallLogOptions(),
		APIOptions:              genericoptions.NewAPIOptions(),
		LogOptions:              genericoptions.NewLogOptions(),
	}
}

// AddFlags registers every group on the flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.GenericServerRunOptions.AddFlags(fs)
	o.SQLiteOptions.AddFlags(fs)
	o.RedisOptions.AddFlags(fs)
	o.CacheOptions.AddFlags(fs)
	o.CallLogOptions.AddFlags(fs)
	o.APIOptions.AddFlags(fs)
	o.LogOptions.AddFlags(fs)
}

// Validate collects validation failures from every group.
func (o *Options) Validate() []error {
	var errs []error
	errs = append(errs, o.GenericServerRunOptions.Validate()...)
	errs = append(errs, o.SQLiteOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.CallLogOptions.Validate()...)
	errs = append(errs, o.APIOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	return errs
}

func (o *Options) String() string {
	data, _ := json.Marshal(o)
	return string(data)
}
