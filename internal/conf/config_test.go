package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// loadFrom resets viper and loads settings from a config file with the given body.
func loadFrom(t *testing.T, body string) (*Settings, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	prev := ConfigFile
	ConfigFile = path
	t.Cleanup(func() { ConfigFile = prev })

	return Load()
}

func TestLoadAppliesDefaults(t *testing.T) {
	s, err := loadFrom(t, "debug: false\n")
	require.NoError(t, err)

	assert.Equal(t, "data/raw", s.Data.Raw)
	assert.Equal(t, "data/processed", s.Data.Processed)
	assert.Equal(t, 224, s.Model.ImageSize)
	assert.Equal(t, "layer4", s.GradCAM.TargetLayer)
	assert.InDelta(t, 0.4, s.GradCAM.Alpha, 1e-12)
	assert.Equal(t, 16, s.Train.BatchSize)
	assert.Equal(t, 10, s.Train.Epochs)
	assert.InDelta(t, 1e-3, s.Train.LearningRate, 1e-12)
	assert.Equal(t, uint64(42), s.Train.Seed)
	assert.True(t, s.Train.BalancedSampler)
	assert.False(t, s.Train.ClassWeights)
	assert.Equal(t, "cancer_app.db", s.Output.SQLite.Path)
	assert.Equal(t, []string{"admin"}, s.Security.AdminUsers)
	assert.Equal(t, []string{"Normal", "Benign", "Malignant"}, s.Model.Classes)
	assert.Positive(t, s.Inference.Threads)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
}

func TestEmbeddedConfigMatchesDefaults(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)

	s, err := loadFrom(t, string(data))
	require.NoError(t, err)
	assert.Equal(t, "models/model.pt", s.Model.Path)
	assert.Equal(t, "8080", s.WebServer.Port)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	s, err := loadFrom(t, `
model:
  imagesize: 128
train:
  epochs: 3
security:
  adminusers: [root, alice]
`)
	require.NoError(t, err)
	assert.Equal(t, 128, s.Model.ImageSize)
	assert.Equal(t, 3, s.Train.Epochs)
	assert.True(t, s.IsAdmin("alice"))
	assert.False(t, s.IsAdmin("bob"))
	assert.False(t, s.IsAdmin(""))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SONOSCAN_TRAIN_EPOCHS", "7")
	t.Setenv("SONOSCAN_MODEL_VERSION", "v2")

	s, err := loadFrom(t, "train:\n  epochs: 3\n")
	require.NoError(t, err)
	assert.Equal(t, 7, s.Train.Epochs)
	assert.Equal(t, "v2", s.Model.Version)
}

func TestEnvValidationFailure(t *testing.T) {
	t.Setenv("SONOSCAN_TRAIN_EPOCHS", "zero")

	_, err := loadFrom(t, "debug: false\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SONOSCAN_TRAIN_EPOCHS")
}

func TestClassNamesPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		modelPath  string
		classNames string
		want       string
	}{
		{"default next to weights", "models/model.pt", "", filepath.Join("models", "class_names.json")},
		{"bare file name next to weights", "models/model.pt", "labels.json", filepath.Join("models", "labels.json")},
		{"relative path kept", "models/model.pt", "conf/labels.json", "conf/labels.json"},
		{"absolute path kept", "models/model.pt", "/srv/labels.json", "/srv/labels.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &Settings{Model: ModelSettings{Path: tt.modelPath, ClassNames: tt.classNames}}
			assert.Equal(t, tt.want, s.ClassNamesPath())
		})
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		classes []string
	}{
		{"default classes", nil},
		{"explicit classes", []string{"Normal", "Benign", "Malignant"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "config.yaml")
			in := &Settings{
				Model: ModelSettings{Path: "weights.bin", ImageSize: 224, Version: "v3", Classes: tt.classes},
				Train: TrainSettings{Epochs: 4, BatchSize: 8},
			}
			require.NoError(t, SaveYAMLConfig(path, in))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			if tt.classes == nil {
				assert.NotContains(t, string(data), "classes:")
			}

			var out Settings
			require.NoError(t, yaml.Unmarshal(data, &out))
			assert.Equal(t, in.Model, out.Model)
			assert.Equal(t, 4, out.Train.Epochs)

			leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "config-*.yaml"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestGenerateRandomSecret(t *testing.T) {
	t.Parallel()

	a, b := GenerateRandomSecret(), GenerateRandomSecret()
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
