// Package conf holds the application settings and loads them through viper.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arribada/audiocontroller/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the complete runtime configuration
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Audio         AudioSettings         `yaml:"audio" mapstructure:"audio"`
	Window        WindowSettings        `yaml:"window" mapstructure:"window"`
	Dispatch      DispatchSettings      `yaml:"dispatch" mapstructure:"dispatch"`
	Classifier    ClassifierSettings    `yaml:"classifier" mapstructure:"classifier"`
	Output        OutputSettings        `yaml:"output" mapstructure:"output"`
	Processor     ProcessorSettings     `yaml:"processor" mapstructure:"processor"`
	DebugWAV      DebugWAVSettings      `yaml:"debug_wav" mapstructure:"debug_wav"`
	MQTT          MQTTSettings          `yaml:"mqtt" mapstructure:"mqtt"`
	Notify        NotifySettings        `yaml:"notify" mapstructure:"notify"`
	Observability ObservabilitySettings `yaml:"observability" mapstructure:"observability"`
	Sentry        SentrySettings        `yaml:"sentry" mapstructure:"sentry"`
	Logging       logger.LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// AudioSettings configures the capture device
type AudioSettings struct {
	Source     string `yaml:"source" mapstructure:"source"`           // device id, usually from the command line
	SampleRate uint32 `yaml:"sample_rate" mapstructure:"sample_rate"` // requested rate, the device may coerce it
	Backend    string `yaml:"backend" mapstructure:"backend"`         // empty selects one by GOOS
}

// WindowSettings sizes the sliding window, in samples
type WindowSettings struct {
	Length      int    `yaml:"length" mapstructure:"length"`
	SliceLength int    `yaml:"slice_length" mapstructure:"slice_length"`
	Layout      string `yaml:"layout" mapstructure:"layout"` // rolled or register
}

// DispatchSettings controls when and how windows are classified
type DispatchSettings struct {
	Mode            string        `yaml:"mode" mapstructure:"mode"`       // sync or async
	Cadence         string        `yaml:"cadence" mapstructure:"cadence"` // every, skip or period
	SkipCount       int           `yaml:"skip_count" mapstructure:"skip_count"`
	Period          time.Duration `yaml:"period" mapstructure:"period"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	QueueSize       int           `yaml:"queue_size" mapstructure:"queue_size"`
	Overflow        string        `yaml:"overflow" mapstructure:"overflow"` // drop-oldest or drop-newest
	Snapshot        string        `yaml:"snapshot" mapstructure:"snapshot"` // copy or lock
	OnClassifyError string        `yaml:"on_classify_error" mapstructure:"on_classify_error"`
}

// ClassifierSettings configures the inference engine
type ClassifierSettings struct {
	ModelPath  string `yaml:"model_path" mapstructure:"model_path"`
	LabelsPath string `yaml:"labels_path" mapstructure:"labels_path"`
	Threads    int    `yaml:"threads" mapstructure:"threads"` // 0 picks a value from the CPU topology
	PullChunk  int    `yaml:"pull_chunk" mapstructure:"pull_chunk"`
	Debug      bool   `yaml:"debug" mapstructure:"debug"`
}

// OutputSettings selects how results are printed
type OutputSettings struct {
	Format string `yaml:"format" mapstructure:"format"` // log or classic
}

// ProcessorSettings configures result smoothing and alerting
type ProcessorSettings struct {
	Threshold float64       `yaml:"threshold" mapstructure:"threshold"`
	MAFSize   int           `yaml:"maf_size" mapstructure:"maf_size"`
	Cooldown  time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
}

// DebugWAVSettings configures per-window WAV dumps
type DebugWAVSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// MQTTSettings configures result publishing
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"`
	Topic    string `yaml:"topic" mapstructure:"topic"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Retain   bool   `yaml:"retain" mapstructure:"retain"`
	// PublishAll sends every result, not only threshold crossings
	PublishAll bool `yaml:"publish_all" mapstructure:"publish_all"`
}

// NotifySettings configures push notifications for threshold alerts
type NotifySettings struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	URLs    []string      `yaml:"urls" mapstructure:"urls"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ObservabilitySettings configures the Prometheus endpoint
type ObservabilitySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// SentrySettings configures error telemetry
type SentrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// SliceDuration returns the wall-clock length of one slice at the given effective rate
func (s *Settings) SliceDuration(sampleRate uint32) time.Duration {
	if sampleRate == 0 {
		return 0
	}
	return time.Duration(s.Window.SliceLength) * time.Second / time.Duration(sampleRate)
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file into Settings. An empty configFile searches
// the default config paths and writes the embedded defaults if nothing is found.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("AUDIOCONTROLLER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml to dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, getDefaultConfig(), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

func getDefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// the file is embedded at build time
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ToYAML renders settings as YAML with secrets masked
func ToYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = "********"
	}
	if len(masked.Notify.URLs) > 0 {
		masked.Notify.URLs = make([]string, len(settings.Notify.URLs))
		for i := range masked.Notify.URLs {
			masked.Notify.URLs[i] = "********"
		}
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath through a temporary file and rename
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
