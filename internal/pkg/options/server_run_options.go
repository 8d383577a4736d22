// Package options defines the reusable flag groups of the server binary.
package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ServerRunOptions configures the HTTP listener.
type ServerRunOptions struct {
	Mode        string `json:"mode"         mapstructure:"mode"`
	BindAddress string `json:"bind-address" mapstructure:"bind-address"`
	BindPort    int    `json:"bind-port"    mapstructure:"bind-port"`
	Healthz     bool   `json:"healthz"      mapstructure:"healthz"`
	Metrics     bool   `json:"metrics"      mapstructure:"metrics"`
}

// NewServerRunOptions returns defaults: release mode on 0.0.0.0:8080 with
// healthz and metrics enabled.
func NewServerRunOptions() *ServerRunOptions {
	return &ServerRunOptions{
		Mode:        "release",
		BindAddress: "0.0.0.0",
		BindPort:    8080,
		Healthz:     true,
		Metrics:     true,
	}
}

func (o *ServerRunOptions) Validate() []error {
	var errs []error
	if o.BindPort < 1 || o.BindPort > 65535 {
		errs = append(errs, fmt.Errorf("bind port %d out of range [1, 65535]", o.BindPort))
	}
	if o.Mode != "release" && o.Mode != "debug" && o.Mode != "test" {
		errs = append(errs, fmt.Errorf("invalid server mode %q, must be 'release', 'debug' or 'test'", o.Mode))
	}
	return errs
}

func (o *ServerRunOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Mode, "server.mode", o.Mode, "Server mode: 'release', 'debug' or 'test'.")
	fs.StringVar(&o.BindAddress, "server.bind-address", o.BindAddress, "IP address the server listens on.")
	fs.IntVar(&o.BindPort, "server.bind-port", o.BindPort, "Port the server listens on.")
	fs.BoolVar(&o.Healthz, "server.healthz", o.Healthz, "Install the /healthz endpoint.")
	fs.BoolVar(&o.Metrics, "server.metrics", o.Metrics, "Install the /metrics endpoint.")
}
