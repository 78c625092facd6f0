package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose; with neither set the configured
// level is used.
func configureLogger(cmd *cobra.Command, configured string) (*logrus.Logger, error) {
	levelStr, _ := cmd.Flags().GetString("log-level")
	if levelStr == "" {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			levelStr = "debug"
		} else {
			levelStr = configured
		}
	}

	var level logrus.Level
	switch levelStr {
	case "debug":
		level = logrus.DebugLevel
	case "info":
		level = logrus.InfoLevel
	case "warn":
		level = logrus.WarnLevel
	case "error":
		level = logrus.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
