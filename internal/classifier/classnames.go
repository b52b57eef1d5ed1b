package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// LoadClassNames reads a JSON array of class names. A missing file falls back to
// fallback with a warning; a malformed or empty file is a configuration error.
func LoadClassNames(path string, fallback []string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Global().Module("classifier").Warn("class names file not found, using defaults",
				logger.String("path", path),
				logger.Any("classes", fallback))
			return slices.Clone(fallback), nil
		}
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Context("path", path).
			Build()
	}
	if len(names) == 0 {
		return nil, errors.Newf("class names file %s is empty", path).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return names, nil
}

// SaveClassNames writes names as a JSON array next to the weights.
func SaveClassNames(path string, names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryFileIO).Context("path", path).Build()
	}
	return nil
}

func checkClassNames(names []string, m *Model) error {
	if len(names) != m.NumClasses() {
		return errors.Newf("%d class names for a %d-class model", len(names), m.NumClasses()).
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
