// config.go: This file contains the configuration for the kvmsync service. It defines the settings struct and functions to load and save the settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains process-wide settings.
type MainSettings struct {
	Name string    // name of the instance, used in logs and User-Agent
	Log  LogConfig // main log file settings
}

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // Path to the log file
	Rotation RotationType // Type of log rotation
	MaxSize  int64        // Max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// OFDBSettings contains settings for the upstream OpenFairDB API.
type OFDBSettings struct {
	URL         string // base URL of the OFDB API, e.g. https://api.ofdb.io/v0
	Limit       int    // result limit passed to search requests
	MaxRetries  int    // total attempts per request before giving up
	RetryDelay  int    // base retry delay in seconds, scales linearly with attempt number
	Concurrency int    // max simultaneous requests per fetcher instance
	Timeout     int    // per-attempt timeout in seconds
	ChunkSize   int    // entry IDs per detail-fetch request
}

// AreaSettings defines one rectangular region to crawl exhaustively.
// The region is subdivided into a (LatChunks-1) x (LngChunks-1) search grid.
type AreaSettings struct {
	Name      string  // area name, used in logs and metrics
	LatMin    float64 `mapstructure:"latmin"`    // southern boundary
	LatMax    float64 `mapstructure:"latmax"`    // northern boundary
	LngMin    float64 `mapstructure:"lngmin"`    // western boundary
	LngMax    float64 `mapstructure:"lngmax"`    // eastern boundary
	LatChunks int     `mapstructure:"latchunks"` // grid points on the latitude axis, min 2
	LngChunks int     `mapstructure:"lngchunks"` // grid points on the longitude axis, min 2
}

// OutputSettings contains settings for the local entry store.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   // true to enable sqlite output
		Path    string // path to sqlite database file
	}

	MySQL struct {
		Enabled  bool   // true to enable mysql output
		Username string // username for mysql database
		Password string // password for mysql database
		Database string // database name for mysql database
		Host     string // host for mysql database
		Port     string // port for mysql database
	}
}

// ScheduleConfig defines one recurring job.
type ScheduleConfig struct {
	Enabled  bool // true to run this job on a schedule
	Interval int  // minutes between runs
}

// SchedulesSettings groups the recurring jobs of the service.
type SchedulesSettings struct {
	FullSync      ScheduleConfig `mapstructure:"fullsync"`
	RecentSync    ScheduleConfig `mapstructure:"recentsync"`
	DailyDigest   ScheduleConfig `mapstructure:"dailydigest"`
	WeeklyDigest  ScheduleConfig `mapstructure:"weeklydigest"`
	MonthlyDigest ScheduleConfig `mapstructure:"monthlydigest"`
}

// EmailSettings contains settings for outbound subscription email.
type EmailSettings struct {
	Enabled        bool   // true to enable email delivery
	Domain         string // sending domain
	APIKey         string `mapstructure:"apikey"` // API key for the mail provider
	URL            string // base URL of the mail provider API
	Sender         string // From address
	RateLimit      int    `mapstructure:"ratelimit"` // messages per minute
	MaxRetries     int    `mapstructure:"maxretries"`
	RetryDelay     int    `mapstructure:"retrydelay"`     // seconds
	ActivationURL  string `mapstructure:"activationurl"`  // public base URL for activation links
	UnsubscribeURL string `mapstructure:"unsubscribeurl"` // public base URL for unsubscribe links
	TestRecipient  string `mapstructure:"testrecipient"`  // overrides all recipients when set
}

// WebServerSettings contains settings for the subscription HTTP API.
type WebServerSettings struct {
	Enabled bool      // true to enable the web server
	Port    string    // port for the web server
	Log     LogConfig // web server log settings
}

// Settings contains all configuration options for the kvmsync service.
type Settings struct {
	Debug bool // true to enable debug mode

	Main      MainSettings
	OFDB      OFDBSettings
	Areas     []AreaSettings
	Output    OutputSettings
	Schedules SchedulesSettings
	Email     EmailSettings
	WebServer WebServerSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Get OS specific config paths
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	// Assign config paths to Viper
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	// Read configuration file
	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	// Create directories for config file
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write default config file
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SetSettings replaces the current settings instance. Intended for tests.
func SetSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	// Marshal the settings struct to YAML
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write the YAML data to a temporary file first to keep the write atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() {
		_ = os.Remove(tempFileName)
	}()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
