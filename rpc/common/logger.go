package common

import (
	"github.com/shelfdb/shelf/lib/logger"
)

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers applies the configured log level to every named logger used
// by the server process.
func InitLoggers(config ServerConfig) error {
	level, err := logger.ParseLogLevel(config.LogLevel)
	if err != nil {
		return err
	}
	logger.SetGlobalLevel(level)
	return nil
}
