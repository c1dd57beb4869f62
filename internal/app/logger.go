package app

import (
	"io"
	"log/slog"

	"github.com/felixgeelhaar/almanac/pkg/config"
	"github.com/felixgeelhaar/almanac/pkg/observability"
)

// NewLogger builds the logger for a binary. Production logs JSON; verbose
// forces debug level.
func NewLogger(cfg *config.Config, service string, out io.Writer, verbose bool) *slog.Logger {
	logCfg := observability.DefaultLogConfig()
	if cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	if cfg.LogLevel != "" {
		logCfg.Level = observability.LogLevel(cfg.LogLevel)
	}
	if verbose || (cfg.IsDevelopment() && cfg.LogLevel == "") {
		logCfg.Level = observability.LogLevelDebug
	}
	if service != "" {
		logCfg.ServiceName = service
	}
	if out != nil {
		logCfg.Output = out
	}
	return observability.NewLogger(logCfg)
}
