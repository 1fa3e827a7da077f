package app

import (
	"flag"

	"github.com/driftql/queryrt/pkg/taskrt"
)

// Config is the root config for App, grounded on
// cmd/tempo/app/config.go's Config struct shape (yaml tags, nested
// component configs, RegisterFlagsAndApplyDefaults(prefix, f)) but
// scaled down to queryrt's single debug HTTP surface instead of the
// full dskit/server component — spec §1 treats "HTTP transport" as an
// external collaborator reached only through a narrow interface, so
// queryrt's own process wiring stays to plain net/http + gorilla/mux.
type Config struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`

	TaskRT taskrt.Config `yaml:"taskrt,omitempty"`
}

// RegisterFlagsAndApplyDefaults registers prefixed flags and fills cfg
// with defaults, mirroring cmd/tempo/app/config.go's contract.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.HTTPListenAddr, "http-listen-addr", ":3200", "HTTP listen address for the debug/status surface.")
	f.StringVar(&c.LogLevel, "log.level", "info", "Minimum level logged: debug, info, warn, error.")
	f.StringVar(&c.LogFormat, "log.format", "logfmt", "Log format: logfmt or json.")

	c.TaskRT.RegisterFlagsAndApplyDefaults(prefix+"taskrt", f)
}
