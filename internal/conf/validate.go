// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/sonoscan/sonoscan/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct and reports every violation.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateModelSettings(&settings.Model)...)
	ve.Errors = append(ve.Errors, validateGradCAMSettings(&settings.GradCAM)...)
	ve.Errors = append(ve.Errors, validateTrainSettings(&settings.Train)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(&settings.Output)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateModelSettings(m *ModelSettings) []string {
	var errs []string
	if m.ImageSize <= 0 {
		errs = append(errs, "model.imagesize must be positive")
	}
	if m.Path == "" {
		errs = append(errs, "model.path must be set")
	}
	return errs
}

func validateGradCAMSettings(g *GradCAMSettings) []string {
	var errs []string
	if g.Alpha <= 0 || g.Alpha >= 1 {
		errs = append(errs, "gradcam.alpha must be between 0 and 1 exclusive")
	}
	if g.TargetLayer == "" {
		errs = append(errs, "gradcam.targetlayer must be set")
	}
	return errs
}

func validateTrainSettings(t *TrainSettings) []string {
	var errs []string
	if t.BatchSize < 1 {
		errs = append(errs, "train.batchsize must be at least 1")
	}
	if t.Epochs < 1 {
		errs = append(errs, "train.epochs must be at least 1")
	}
	if t.LearningRate <= 0 {
		errs = append(errs, "train.learningrate must be positive")
	}
	if t.ClassWeightAlpha < 0 || t.ClassWeightAlpha > 1 {
		errs = append(errs, "train.classweightalpha must be between 0 and 1")
	}
	if t.ValSplit <= 0 || t.ValSplit >= 1 {
		errs = append(errs, "train.valsplit must be between 0 and 1 exclusive")
	}
	if t.BalancedSampler && t.ClassWeights {
		logger.Global().Module("conf").Warn("both balancedsampler and classweights enabled, using the sampler")
	}
	return errs
}

func validateOutputSettings(o *OutputSettings) []string {
	switch {
	case o.SQLite.Enabled && o.MySQL.Enabled:
		return []string{"only one of output.sqlite and output.mysql may be enabled"}
	case !o.SQLite.Enabled && !o.MySQL.Enabled:
		return []string{"no database configured: enable output.sqlite or output.mysql"}
	case o.SQLite.Enabled && o.SQLite.Path == "":
		return []string{"output.sqlite.path must be set"}
	case o.MySQL.Enabled && (o.MySQL.Host == "" || o.MySQL.Database == ""):
		return []string{"output.mysql.host and output.mysql.database must be set"}
	}
	return nil
}

func validateWebServerSettings(w *WebServerSettings) []string {
	if !w.Enabled {
		return nil
	}
	if err := validateEnvPort(w.Port); err != nil {
		return []string{"webserver.port " + err.Error()}
	}
	return nil
}
