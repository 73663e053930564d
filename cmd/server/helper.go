package main

import (
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/config"
	"github.com/yourorg/oracle-yield-curve/internal/registry"
)

// setupLogging configures the logging for the application
func setupLogging(cfg config.Config) {
	switch cfg.LogFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	logrus.Info("Logging configured")
}

// loadRegistry seeds the key registry from the keys file, or starts empty
func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		logrus.Info("KEYS_FILE not set, starting with an empty key registry")
		return registry.New(), nil
	}

	r, err := registry.LoadFile(path)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"file":      path,
		"on_keys":   len(r.OnKeys()),
		"spot_keys": len(r.SpotKeys()),
	}).Info("Key registry loaded")
	return r, nil
}
