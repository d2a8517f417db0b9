package keel

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger from configuration.
//
// log_format "json" selects the production encoder; anything else selects the
// development console encoder. log_level accepts debug, info, warn and error.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.EqualFold(cfg.String(CfgLogFormat, "console"), "json") {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.String(CfgLogLevel, "info"))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	// Console output belongs to commands; logs go to stderr.
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	return zcfg.Build()
}
