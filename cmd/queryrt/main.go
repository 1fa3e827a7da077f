package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/drone/envsubst"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"gopkg.in/yaml.v2"

	"github.com/driftql/queryrt/cmd/queryrt/app"
	"github.com/driftql/queryrt/cmd/queryrt/build"
	"github.com/driftql/queryrt/pkg/util/log"
)

// Version is set via build flag -ldflags -X main.Version, same as
// cmd/tempo/main.go's build-time injected globals.
var (
	Version  string
	Branch   string
	Revision string
)

func init() {
	version.Version = Version
	version.Branch = Branch
	version.Revision = Revision
	prometheus.MustRegister(version.NewCollector(build.AppName))
}

func main() {
	printVersion := flag.Bool("version", false, "Print this build's version information")

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}

	if *printVersion {
		fmt.Println(version.Print(build.AppName))
		os.Exit(0)
	}

	log.InitLogger(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(*cfg)
	if err != nil {
		level.Error(log.Logger).Log("msg", "error initialising queryrt", "err", err)
		os.Exit(1)
	}

	level.Info(log.Logger).Log("msg", "starting queryrt", "version", version.Info())

	if err := a.Run(); err != nil {
		level.Error(log.Logger).Log("msg", "error running queryrt", "err", err)
		os.Exit(1)
	}
}

// loadConfig mirrors cmd/tempo/main.go's loadConfig(): a two-pass flag
// parse to find -config.file (and -config.expand-env) before the rest of
// the flags are registered, then an optional YAML overlay with
// github.com/drone/envsubst expansion.
func loadConfig() (*app.Config, error) {
	const (
		configFileOption      = "config.file"
		configExpandEnvOption = "config.expand-env"
	)

	var (
		configFile      string
		configExpandEnv bool
	)

	args := os.Args[1:]
	cfg := &app.Config{}

	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "")
	fs.BoolVar(&configExpandEnv, configExpandEnvOption, false, "")

	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}

	cfg.RegisterFlagsAndApplyDefaults("", flag.CommandLine)

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read configFile %s: %w", configFile, err)
		}

		if configExpandEnv {
			s, err := envsubst.EvalEnv(string(buf))
			if err != nil {
				return nil, fmt.Errorf("failed to expand env vars from configFile %s: %w", configFile, err)
			}
			buf = []byte(s)
		}

		if err := yaml.UnmarshalStrict(buf, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configFile %s: %w", configFile, err)
		}
	}

	flagext.IgnoredFlag(flag.CommandLine, configFileOption, "Configuration file to load")
	flagext.IgnoredFlag(flag.CommandLine, configExpandEnvOption, "Whether to expand environment variables in config file")
	flag.Parse()

	return cfg, nil
}
