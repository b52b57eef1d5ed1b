// config.go: sonoscan configuration structures and loading
package conf

import (
	"crypto/rand"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sonoscan/sonoscan/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// DataSettings locates the raw and preprocessed image folders.
// Both are laid out as <root>/<class>/<image>.
type DataSettings struct {
	Raw       string `yaml:"raw"`
	Processed string `yaml:"processed"`
}

// ModelSettings contains settings for the classifier weights
type ModelSettings struct {
	Path       string   `yaml:"path"`              // weight file
	ClassNames string   `yaml:"classnames"`        // class_names.json, empty means next to the weights
	Version    string   `yaml:"version"`           // recorded with every prediction
	ImageSize  int      `yaml:"imagesize"`         // square input edge in pixels
	Classes    []string `yaml:"classes,omitempty"` // fallback class names, omitted so defaults apply
}

// GradCAMSettings controls the explanation overlay.
type GradCAMSettings struct {
	Enabled     bool    `yaml:"enabled"`
	TargetLayer string  `yaml:"targetlayer"`
	Alpha       float64 `yaml:"alpha"`
}

// TrainSettings contains fine-tuning hyperparameters
type TrainSettings struct {
	BatchSize         int     `yaml:"batchsize"`
	Epochs            int     `yaml:"epochs"`
	LearningRate      float64 `yaml:"learningrate"`
	Seed              uint64  `yaml:"seed"`
	ValSplit          float64 `yaml:"valsplit"`
	FreezeBackbone    bool    `yaml:"freezebackbone"`
	UnfreezeLastBlock bool    `yaml:"unfreezelastblock"`
	BalancedSampler   bool    `yaml:"balancedsampler"`
	ClassWeights      bool    `yaml:"classweights"`
	ClassWeightAlpha  float64 `yaml:"classweightalpha"`
	Augment           bool    `yaml:"augment"`
	InitWeights       string  `yaml:"initweights"` // warm start, fc is skipped
}

// SQLiteSettings contains settings for the SQLite database output.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MySQLSettings contains settings for the MySQL database output.
type MySQLSettings struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`     // ${VAR} references are expanded
	PasswordFile string `yaml:"passwordfile"` // mounted secret, wins over password
	Database     string `yaml:"database"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
}

// OutputSettings selects the relational store.
type OutputSettings struct {
	SQLite SQLiteSettings `yaml:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql"`
}

// ReportSettings contains settings for generated prediction reports
type ReportSettings struct {
	Dir string `yaml:"dir"`
}

// SecuritySettings contains authentication settings
type SecuritySettings struct {
	AdminUsers        []string      `yaml:"adminusers"`
	SessionSecret     string        `yaml:"sessionsecret"`
	SessionSecretFile string        `yaml:"sessionsecretfile"`
	SessionDuration   time.Duration `yaml:"sessionduration"`
	TokenTTL          time.Duration `yaml:"tokenttl"`
	LoginRateLimit    float64       `yaml:"loginratelimit"` // attempts per second per client IP
	LoginBurst        int           `yaml:"loginburst"`
	AllowRegistration bool          `yaml:"allowregistration"`
}

// WebServerSettings contains settings for the HTTP API
type WebServerSettings struct {
	Enabled       bool          `yaml:"enabled"`
	Port          string        `yaml:"port"`
	MaxUploadSize int64         `yaml:"maxuploadsize"` // bytes
	CacheTTL      time.Duration `yaml:"cachettl"`      // analytics response cache
	Debug         bool          `yaml:"debug"`
	// AllowedOrigins lists CORS origins; empty allows any origin without credentials.
	AllowedOrigins []string `yaml:"allowedorigins"`
}

// SentrySettings contains error telemetry settings
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	DSNFile     string `yaml:"dsnfile"`
	Environment string `yaml:"environment"`
}

// InferenceSettings controls CPU parallelism.
type InferenceSettings struct {
	Threads int `yaml:"threads"` // 0 means physical cores
}

// Settings contains all configuration options for sonoscan.
type Settings struct {
	Debug bool `yaml:"debug"`

	Data      DataSettings         `yaml:"data"`
	Model     ModelSettings        `yaml:"model"`
	GradCAM   GradCAMSettings      `yaml:"gradcam"`
	Train     TrainSettings        `yaml:"train"`
	Output    OutputSettings       `yaml:"output"`
	Reports   ReportSettings       `yaml:"reports"`
	Security  SecuritySettings     `yaml:"security"`
	WebServer WebServerSettings    `yaml:"webserver"`
	Logging   logger.LoggingConfig `yaml:"logging"`
	Sentry    SentrySettings       `yaml:"sentry"`
	Inference InferenceSettings    `yaml:"inference"`
}

// ClassNamesPath returns the class_names.json location, defaulting to the weights directory.
func (s *Settings) ClassNamesPath() string {
	if s.Model.ClassNames != "" && filepath.IsAbs(s.Model.ClassNames) {
		return s.Model.ClassNames
	}
	name := s.Model.ClassNames
	if name == "" {
		name = DefaultClassNamesFile
	}
	if filepath.Base(name) != name {
		return name
	}
	return filepath.Join(filepath.Dir(s.Model.Path), name)
}

// IsAdmin reports whether username is listed in security.adminusers.
func (s *Settings) IsAdmin(username string) bool {
	if username == "" {
		return false
	}
	for _, admin := range s.Security.AdminUsers {
		if admin == username {
			return true
		}
	}
	return false
}

// ConfigFile overrides the config search when set, usually from the --config flag.
var ConfigFile string

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings singleton.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if settings.Inference.Threads <= 0 {
		settings.Inference.Threads = DefaultThreads()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, reads the config file and binds environment overrides.
func initViper() error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	if ConfigFile != "" {
		viper.SetConfigFile(ConfigFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", ConfigFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths)
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml to the user config directory.
func createDefaultConfig(configPaths []string) error {
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	if viper.GetString("security.sessionsecret") == "" {
		viper.Set("security.sessionsecret", GenerateRandomSecret())
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetSettings replaces the current settings instance. Used by commands that build settings
// outside Load, and by tests.
func SetSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				logger.Global().Module("conf").Error("error loading settings", logger.Error(err))
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// GenerateRandomSecret returns 256 bits of URL-safe base64 randomness.
func GenerateRandomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logger.Global().Module("conf").Warn("failed to generate random secret", logger.Error(err))
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
