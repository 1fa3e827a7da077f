package taskrt

import (
	"flag"
	"time"
)

// Config holds the tunables every task's output buffer is built with,
// plus the reaper's polling cadence, grounded on the two-ticker
// cfg.ScheduleInterval / cfg.TenantPriorityInterval shape in
// modules/backendscheduler.Config.
type Config struct {
	MaxBufferedBytes int64         `yaml:"max_buffered_bytes"`
	ReapInterval     time.Duration `yaml:"reap_interval"`
}

// RegisterFlagsAndApplyDefaults registers prefixed flags and fills cfg
// with defaults, the same contract every nested Config in
// cmd/tempo/app/config.go implements.
func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.Int64Var(&cfg.MaxBufferedBytes, prefix+".max-buffered-bytes", 32*1024*1024, "Default per-task output buffer byte budget.")
	f.DurationVar(&cfg.ReapInterval, prefix+".reap-interval", 5*time.Second, "How often to scan for FINISHED tasks and drop them from the manager.")
}
