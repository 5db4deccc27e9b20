package initializers

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// LoadEnv reads .env (or ENV_FILE) into the process environment. A missing
// file is fine: deployed builds get their env from the platform.
func LoadEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		zap.S().Infow("no env file loaded", "path", path, "error", err)
	}
}
