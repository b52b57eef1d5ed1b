// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultClassNamesFile is written next to the weights by the train command
	DefaultClassNamesFile = "class_names.json"

	DefaultTargetLayer = "layer4"
	DefaultImageSize   = 224
)

// DefaultClasses is the label order used when no class_names.json exists.
var DefaultClasses = []string{"Normal", "Benign", "Malignant"}

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("data.raw", "data/raw")
	viper.SetDefault("data.processed", "data/processed")

	viper.SetDefault("model.path", "models/model.pt")
	viper.SetDefault("model.classnames", "")
	viper.SetDefault("model.version", "v1")
	viper.SetDefault("model.imagesize", DefaultImageSize)
	viper.SetDefault("model.classes", DefaultClasses)

	viper.SetDefault("gradcam.enabled", true)
	viper.SetDefault("gradcam.targetlayer", DefaultTargetLayer)
	viper.SetDefault("gradcam.alpha", 0.4)

	viper.SetDefault("train.batchsize", 16)
	viper.SetDefault("train.epochs", 10)
	viper.SetDefault("train.learningrate", 1e-3)
	viper.SetDefault("train.seed", 42)
	viper.SetDefault("train.valsplit", 0.2)
	viper.SetDefault("train.freezebackbone", false)
	viper.SetDefault("train.unfreezelastblock", false)
	viper.SetDefault("train.balancedsampler", true)
	viper.SetDefault("train.classweights", false)
	viper.SetDefault("train.classweightalpha", 0.5)
	viper.SetDefault("train.augment", true)
	viper.SetDefault("train.initweights", "")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "cancer_app.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "sonoscan")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "sonoscan")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("reports.dir", "reports")

	viper.SetDefault("security.adminusers", []string{"admin"})
	viper.SetDefault("security.sessionsecret", "")
	viper.SetDefault("security.sessionduration", 7*24*time.Hour)
	viper.SetDefault("security.tokenttl", 12*time.Hour)
	viper.SetDefault("security.loginratelimit", 0.2)
	viper.SetDefault("security.loginburst", 5)
	viper.SetDefault("security.allowregistration", true)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.maxuploadsize", 20<<20)
	viper.SetDefault("webserver.cachettl", 30*time.Second)
	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.allowedorigins", []string{})

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/sonoscan.log")
	viper.SetDefault("logging.fileoutput.level", "info")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("inference.threads", 0)
}
