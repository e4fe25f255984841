// Package logging builds zap loggers for the commands.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Development console logger when verbose, production JSON otherwise
func New(level string, verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	if level = strings.TrimSpace(level); level != "" {
		atomic, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = atomic
	}

	return cfg.Build()
}
