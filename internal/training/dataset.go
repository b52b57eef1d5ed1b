// Package training fine-tunes and evaluates the classifier on an image folder laid out as
// <root>/<class>/<image>.
package training

import (
	"image"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/imaging"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// ImageExtensions are the file types ImageFolder picks up, compared case-insensitively.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif"}

func getLogger() logger.Logger {
	return logger.Global().Module("training")
}

// Sample is one labelled image file.
type Sample struct {
	Path  string
	Label int
}

// Dataset is a labelled image collection. Class indices follow the sorted directory names.
type Dataset struct {
	Root       string
	ClassNames []string
	Samples    []Sample
}

// ImageFolder lists the class subdirectories of root in sorted order and the images in each.
// Subdirectories without images still count as classes.
func ImageFolder(root string) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("path", root).
			Build()
	}

	ds := &Dataset{Root: root}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		label := len(ds.ClassNames)
		ds.ClassNames = append(ds.ClassNames, e.Name())

		files, err := os.ReadDir(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, errors.New(err).
				Component("training").
				Category(errors.CategoryFileIO).
				Context("path", filepath.Join(root, e.Name())).
				Build()
		}
		for _, f := range files {
			if f.IsDir() || !IsImageFile(f.Name()) {
				continue
			}
			ds.Samples = append(ds.Samples, Sample{Path: filepath.Join(root, e.Name(), f.Name()), Label: label})
		}
	}

	if len(ds.ClassNames) == 0 {
		return nil, errors.Newf("no class directories in %s", root).
			Component("training").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(ds.Samples) == 0 {
		return nil, errors.Newf("no images found in %s", root).
			Component("training").
			Category(errors.CategoryValidation).
			Build()
	}
	return ds, nil
}

// IsImageFile reports whether name has one of ImageExtensions.
func IsImageFile(name string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(name)))
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Samples) }

// Counts returns the number of samples per class.
func (d *Dataset) Counts() []int {
	counts := make([]int, len(d.ClassNames))
	for _, s := range d.Samples {
		counts[s.Label]++
	}
	return counts
}

// Subset returns a dataset holding the samples at indices, sharing the class names.
func (d *Dataset) Subset(indices []int) *Dataset {
	out := &Dataset{Root: d.Root, ClassNames: d.ClassNames, Samples: make([]Sample, len(indices))}
	for i, idx := range indices {
		out.Samples[i] = d.Samples[idx]
	}
	return out
}

// loadTensor decodes path, resizes it to size×size and, when aug is set, applies the
// training augmentations before normalising.
func loadTensor(path string, size int, aug *imaging.Augmenter) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, err
	}
	var src image.Image = imaging.Resize(img, size)
	if aug != nil {
		src = aug.Apply(src)
	}
	return imaging.ResizeTensor(src, size)
}
