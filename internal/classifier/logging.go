package classifier

import "github.com/arribada/audiocontroller/internal/logger"

// GetLogger returns the classifier module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("classifier")
}
