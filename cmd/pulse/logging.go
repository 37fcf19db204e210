package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pulse/pkg/config"
)

// configureLogger builds the command logger from --log-level, falling back
// to the verbose flag. Without either it stays silent.
func configureLogger(cmd *cobra.Command, verboseFlagName string) (*logrus.Logger, error) {
	level := logrus.PanicLevel

	if name, _ := cmd.Flags().GetString("log-level"); name != "" {
		parsed, err := logrus.ParseLevel(name)
		if err != nil || parsed < logrus.ErrorLevel || parsed > logrus.DebugLevel {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		level = parsed
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		level = logrus.DebugLevel
	}

	logger := (&config.Config{LogLevel: level.String()}).NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// loadConfig reads --config. A log level from the file applies only when
// neither --log-level nor the verbose flag was given.
func loadConfig(cmd *cobra.Command, logger *logrus.Logger, verboseFlagName string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if path == "" || cmd.Flags().Changed("log-level") {
		return cfg, nil
	}
	if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		return cfg, nil
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.WithField("path", path).Debug("Loaded config file")
	return cfg, nil
}
