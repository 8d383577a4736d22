// Package config carries the running configuration of the prompthub server.
package config

import (
	"github.com/prompthub/prompthub/internal/prompthub/options"
)

// Config is the running configuration structure of the prompthub service.
type Config struct {
	*options.Options
}

// CreateConfigFromOptions creates a running configuration instance based on
// the given options.
func CreateConfigFromOptions(opts *options.Options) (*Config, error) {
	return &Config{opts}, nil
}
