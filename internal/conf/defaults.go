// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers a default for every key so environment
// overrides work without a config file entry.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.source", "")
	viper.SetDefault("audio.sample_rate", DefaultSampleRate)
	viper.SetDefault("audio.backend", "")

	viper.SetDefault("window.length", DefaultWindowLength)
	viper.SetDefault("window.slice_length", DefaultSliceLength)
	viper.SetDefault("window.layout", LayoutRolled)

	viper.SetDefault("dispatch.mode", ModeAsync)
	viper.SetDefault("dispatch.cadence", CadenceEvery)
	viper.SetDefault("dispatch.skip_count", 0)
	viper.SetDefault("dispatch.period", time.Second)
	viper.SetDefault("dispatch.workers", 1)
	viper.SetDefault("dispatch.queue_size", 1)
	viper.SetDefault("dispatch.overflow", OverflowDropOldest)
	viper.SetDefault("dispatch.snapshot", SnapshotCopy)
	viper.SetDefault("dispatch.on_classify_error", OnErrorFatal)

	viper.SetDefault("classifier.model_path", "model.tflite")
	viper.SetDefault("classifier.labels_path", "labels.txt")
	viper.SetDefault("classifier.threads", 0)
	viper.SetDefault("classifier.pull_chunk", 1024)
	viper.SetDefault("classifier.debug", false)

	viper.SetDefault("output.format", OutputLog)

	viper.SetDefault("processor.threshold", 0.8)
	viper.SetDefault("processor.maf_size", 0)
	viper.SetDefault("processor.cooldown", 30*time.Second)

	viper.SetDefault("debug_wav.enabled", false)
	viper.SetDefault("debug_wav.dir", "debug")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "audiocontroller/results")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.publish_all", false)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.timeout", 10*time.Second)

	viper.SetDefault("observability.enabled", false)
	viper.SetDefault("observability.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/audiocontroller.log")
	viper.SetDefault("logging.file_output.level", "debug")
	viper.SetDefault("logging.file_output.max_size", 50)
	viper.SetDefault("logging.file_output.max_age", 30)
	viper.SetDefault("logging.file_output.max_rotated_files", 5)
}
