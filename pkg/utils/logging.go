package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogConfig stores logging configuration. An empty Format is resolved by
// ForTransport.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// DefaultLogConfig returns the default logging configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "",
		OutputPath: "",
	}
}

// ForTransport fills in the format for the MCP transport being served. On
// stdio the host captures stderr, so logs default to JSON lines there.
func (c LogConfig) ForTransport(transport string) LogConfig {
	if c.Format != "" {
		return c
	}
	if transport == "" || transport == "stdio" {
		c.Format = "json"
	} else {
		c.Format = "text"
	}
	return c
}

// ConfigureLogger sets up a logrus logger based on configuration.
// Logs always go to stderr: in stdio mode stdout carries the MCP stream.
func ConfigureLogger(config LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	// Configure log level
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Configure output format
	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: true,
		})
	}

	// Configure output destination
	if config.OutputPath != "" {
		file, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			logger.SetOutput(io.MultiWriter(os.Stderr, file))
		} else {
			logger.Warnf("Cannot open log file %s, logging to stderr only: %v", config.OutputPath, err)
		}
	}

	return logger
}
