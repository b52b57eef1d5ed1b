package training

import (
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/imaging"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// jpegQuality is used when re-encoding JPEG inputs.
const jpegQuality = 95

// FileError is one input that could not be preprocessed.
type FileError struct {
	Path string
	Err  error
}

// PreprocessResult counts the outcome of a PreprocessFolder run.
type PreprocessResult struct {
	Total     int
	Processed int
	Failed    []FileError
}

// PreprocessFolder center-crop-resizes every image of raw/<class>/ into
// processed/<class>/ under the same file name. Inputs other than JPEG and PNG are
// written as PNG with a .png extension. A file that fails is recorded and
// skipped; the run only fails when nothing could be processed.
func PreprocessFolder(ctx context.Context, raw, processed string, size, workers int) (*PreprocessResult, error) {
	if size < 1 {
		return nil, errors.ValidationError("training", "image size must be positive")
	}
	ds, err := ImageFolder(raw)
	if err != nil {
		return nil, err
	}

	log := getLogger()
	res := &PreprocessResult{Total: ds.Len()}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for _, s := range ds.Samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := filepath.Join(processed, ds.ClassNames[s.Label], outputName(s.Path))
			err := preprocessFile(s.Path, dst, size)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("preprocess failed", logger.String("path", s.Path), logger.Error(err))
				res.Failed = append(res.Failed, FileError{Path: s.Path, Err: err})
				return nil
			}
			res.Processed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	log.Info("preprocess finished",
		logger.Int("total", res.Total),
		logger.Int("processed", res.Processed),
		logger.Int("failed", len(res.Failed)))

	if res.Processed == 0 {
		return res, errors.Newf("all %d images failed to preprocess", res.Total).
			Component("training").
			Category(errors.CategoryImage).
			Context("path", raw).
			Build()
	}
	return res, nil
}

func preprocessFile(src, dst string, size int) error {
	f, err := os.Open(src)
	if err != nil {
		return fileError(err, src)
	}
	img, err := imaging.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	out := imaging.CenterCropResize(img, size)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fileError(err, filepath.Dir(dst))
	}
	w, err := os.Create(dst)
	if err != nil {
		return fileError(err, dst)
	}
	if err := encodeLike(dst, w, out); err != nil {
		w.Close()
		return fileError(err, dst)
	}
	if err := w.Close(); err != nil {
		return fileError(err, dst)
	}
	return nil
}

// outputName keeps JPEG and PNG names and renames anything else to .png.
func outputName(src string) string {
	base := filepath.Base(src)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".jpg", ".jpeg", ".png":
		return base
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}

// encodeLike picks the encoder from the destination extension, PNG unless it is a JPEG.
func encodeLike(path string, w *os.File, img image.Image) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return png.Encode(w, img)
	}
}
