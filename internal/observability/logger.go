package observability

import "github.com/arribada/audiocontroller/internal/logger"

// GetLogger returns the observability logger
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}
