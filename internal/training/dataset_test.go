package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestImageFolderSortsClassesAndFiltersFiles(t *testing.T) {
	t.Parallel()
	root := makeFolder(t, []string{"Normal", "Benign", "Malignant"}, 2)
	require.NoError(t, os.WriteFile(filepath.Join(root, "Benign", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("x"), 0o644))

	ds, err := ImageFolder(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Benign", "Malignant", "Normal"}, ds.ClassNames)
	assert.Equal(t, 6, ds.Len())
	assert.Equal(t, []int{2, 2, 2}, ds.Counts())
	for _, s := range ds.Samples {
		assert.Equal(t, ds.ClassNames[s.Label], filepath.Base(filepath.Dir(s.Path)))
	}

	sub := ds.Subset([]int{5, 0})
	assert.Equal(t, ds.Samples[5], sub.Samples[0])
	assert.Equal(t, ds.ClassNames, sub.ClassNames)
}

func TestImageFolderErrors(t *testing.T) {
	t.Parallel()

	_, err := ImageFolder(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	empty := t.TempDir()
	_, err = ImageFolder(empty)
	assert.True(t, errors.IsValidation(err))

	require.NoError(t, os.MkdirAll(filepath.Join(empty, "Normal"), 0o755))
	_, err = ImageFolder(empty)
	assert.True(t, errors.IsValidation(err))
}

func TestIsImageFile(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"a.png", "b.JPG", "c.jpeg", "d.bmp"} {
		assert.True(t, IsImageFile(ok), ok)
	}
	for _, bad := range []string{"a.txt", "png", "c.tiff"} {
		assert.False(t, IsImageFile(bad), bad)
	}
}
