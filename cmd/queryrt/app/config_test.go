package app

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigRegisterFlagsAndApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.RegisterFlagsAndApplyDefaults("queryrt", &flag.FlagSet{})

	require.Equal(t, ":3200", cfg.HTTPListenAddr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "logfmt", cfg.LogFormat)
	require.Greater(t, cfg.TaskRT.MaxBufferedBytes, int64(0))
	require.Greater(t, cfg.TaskRT.ReapInterval.Seconds(), float64(0))
}
