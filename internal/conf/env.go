// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SONOSCAN"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SONOSCAN_DEBUG", validateEnvBool},

		// Data and model
		{"data.raw", "SONOSCAN_DATA_RAW", validateEnvPath},
		{"data.processed", "SONOSCAN_DATA_PROCESSED", validateEnvPath},
		{"model.path", "SONOSCAN_MODEL_PATH", validateEnvPath},
		{"model.classnames", "SONOSCAN_MODEL_CLASSNAMES", validateEnvPath},
		{"model.version", "SONOSCAN_MODEL_VERSION", nil},
		{"model.imagesize", "SONOSCAN_MODEL_IMAGESIZE", validateEnvPositiveInt},
		{"gradcam.targetlayer", "SONOSCAN_GRADCAM_TARGETLAYER", nil},
		{"gradcam.alpha", "SONOSCAN_GRADCAM_ALPHA", validateEnvUnitInterval},
		{"inference.threads", "SONOSCAN_INFERENCE_THREADS", validateEnvThreads},

		// Training
		{"train.epochs", "SONOSCAN_TRAIN_EPOCHS", validateEnvPositiveInt},
		{"train.batchsize", "SONOSCAN_TRAIN_BATCHSIZE", validateEnvPositiveInt},
		{"train.learningrate", "SONOSCAN_TRAIN_LEARNINGRATE", validateEnvPositiveFloat},

		// Database
		{"output.sqlite.path", "SONOSCAN_SQLITE_PATH", validateEnvPath},
		{"output.mysql.enabled", "SONOSCAN_MYSQL_ENABLED", validateEnvBool},
		{"output.mysql.host", "SONOSCAN_MYSQL_HOST", nil},
		{"output.mysql.port", "SONOSCAN_MYSQL_PORT", validateEnvPort},
		{"output.mysql.username", "SONOSCAN_MYSQL_USERNAME", nil},
		{"output.mysql.password", "SONOSCAN_MYSQL_PASSWORD", nil},
		{"output.mysql.database", "SONOSCAN_MYSQL_DATABASE", nil},

		// Web server and security
		{"webserver.port", "SONOSCAN_WEBSERVER_PORT", validateEnvPort},
		{"security.sessionsecret", "SONOSCAN_SESSION_SECRET", nil},
		{"reports.dir", "SONOSCAN_REPORTS_DIR", validateEnvPath},

		// Telemetry
		{"sentry.enabled", "SONOSCAN_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "SONOSCAN_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every env var and validates the ones that are set.
func bindEnvVars() error {
	var problems []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables enables the SONOSCAN_ prefix for keys outside the binding table.
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f <= 0 {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validateEnvUnitInterval(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f <= 0 || f >= 1 {
		return fmt.Errorf("must be between 0 and 1 exclusive")
	}
	return nil
}

func validateEnvThreads(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must be 0 (auto) or positive")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("must be a port number between 1 and 65535")
	}
	return nil
}

func validateEnvPath(value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains a null byte")
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path is blank")
	}
	return nil
}
