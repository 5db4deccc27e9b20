package initializers

import (
	"os"

	"go.uber.org/zap"
)

// InitLogger installs the global zap logger used across the module.
func InitLogger() *zap.Logger {
	var logger *zap.Logger
	var err error

	if os.Getenv("APP_ENV") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		logger = zap.NewExample()
	}

	_ = zap.ReplaceGlobals(logger)
	return logger
}
