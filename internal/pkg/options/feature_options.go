package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

// CacheOptions tunes resolve-cache behavior.
type CacheOptions struct {
	TTLSeconds int `json:"ttl-seconds" mapstructure:"ttl-seconds"`
}

func NewCacheOptions() *CacheOptions {
	return &CacheOptions{TTLSeconds: 300}
}

func (o *CacheOptions) Validate() []error {
	var errs []error
	if o.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be positive, got %d", o.TTLSeconds))
	}
	return errs
}

func (o *CacheOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.TTLSeconds, "cache.ttl-seconds", o.TTLSeconds, "Default resolve cache TTL in seconds.")
}

// CallLogOptions tunes the asynchronous call log sink.
type CallLogOptions struct {
	QueueSize  int `json:"queue-size"  mapstructure:"queue-size"`
	MaxContent int `json:"max-content" mapstructure:"max-content"`
}

func NewCallLogOptions() *CallLogOptions {
	return &CallLogOptions{QueueSize: 1024, MaxContent: 4096}
}

func (o *CallLogOptions) Validate() []error {
	var errs []error
	if o.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("call log queue size must be positive, got %d", o.QueueSize))
	}
	return errs
}

func (o *CallLogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.QueueSize, "calllog.queue-size", o.QueueSize, "Call log queue capacity.")
	fs.IntVar(&o.MaxContent, "calllog.max-content", o.MaxContent, "Maximum stored rendered-content length in characters.")
}

// APIOptions tunes request handling limits.
type APIOptions struct {
	MaxPageSize           int `json:"max-page-size"           mapstructure:"max-page-size"`
	RequestTimeoutSeconds int `json:"request-timeout-seconds" mapstructure:"request-timeout-seconds"`
}

func NewAPIOptions() *APIOptions {
	return &APIOptions{MaxPageSize: 100, RequestTimeoutSeconds: 30}
}

func (o *APIOptions) Validate() []error {
	var errs []error
	if o.MaxPageSize <= 0 {
		errs = append(errs, fmt.Errorf("max page size must be positive, got %d", o.MaxPageSize))
	}
	if o.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %d", o.RequestTimeoutSeconds))
	}
	return errs
}

func (o *APIOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.MaxPageSize, "api.max-page-size", o.MaxPageSize, "Upper bound for the page_size query parameter.")
	fs.IntVar(&o.RequestTimeoutSeconds, "api.request-timeout-seconds", o.RequestTimeoutSeconds, "Per-request deadline in seconds.")
}

// LogOptions configures the process logger.
type LogOptions struct {
	Level  string `json:"level"  mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

func NewLogOptions() *LogOptions {
	return &LogOptions{Level: "info", Format: "text"}
}

func (o *LogOptions) Validate() []error { return nil }

func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Log level: debug, info, warn or error.")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log format: 'text' or 'json'.")
}
