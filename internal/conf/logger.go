package conf

import "github.com/arribada/audiocontroller/internal/logger"

// GetLogger returns the config module logger. It is fetched from the global
// logger on every call because the global is replaced after settings load.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
