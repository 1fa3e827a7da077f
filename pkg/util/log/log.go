// Package log holds the process-wide logger used by every queryrt
// package. Call sites log with level.Info(log.Logger).Log("msg", ...,
// "key", v) rather than importing a logger of their own, mirroring
// github.com/grafana/tempo/pkg/util/log.
package log

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the package-level logger every other queryrt package logs
// through. It defaults to a sensible standalone logger so packages that
// log during init (before InitLogger runs) don't panic on a nil logger;
// InitLogger replaces it once the process config is known.
var Logger = newDefaultLogger()

func newDefaultLogger() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return level.NewFilter(l, level.AllowInfo())
}

// InitLogger rebuilds Logger from the process configuration: text vs.
// JSON formatting and the minimum allowed level, same as
// github.com/grafana/tempo/pkg/util/log.InitLogger. main calls it once the
// config is loaded; anything logged before then goes through the default
// Logger.
func InitLogger(logLevel, logFormat string) {
	var l log.Logger
	if logFormat == "json" {
		l = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	} else {
		l = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var opt level.Option
	switch logLevel {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	Logger = level.NewFilter(l, opt)
}
