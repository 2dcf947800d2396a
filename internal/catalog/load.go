package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andresmejia3/enroll/internal/types"
	"github.com/andresmejia3/enroll/internal/utils"
	"github.com/andresmejia3/enroll/internal/worker"
	"github.com/schollz/progressbar/v3"
)

// Extractor detects faces in an encoded image and returns their locations and
// encodings in detection order. Errors wrapping worker.ErrWorkerCrashed mean
// the engine itself is gone; any other error belongs to the image.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]types.FaceResult, error)
}

// Loader bulk-imports a directory of face images into a catalog.
type Loader struct {
	Extractor Extractor
	Logger    *slog.Logger
	Progress  *progressbar.ProgressBar // optional
}

// Load reads every image in dir (sorted by name) and appends the first face
// of each one, labeled with the filename. Images without a face or that fail
// to decode are skipped with a warning. Load does not deduplicate.
func (l *Loader) Load(ctx context.Context, name, dir string) (*Catalog, error) {
	files, err := utils.ListImages(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s database: %w", name, err)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Info("loading database", "name", name, "dir", dir, "files", len(files))

	if l.Progress != nil {
		l.Progress.ChangeMax(len(files))
	}

	c := New(name)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := l.firstEncoding(ctx, filepath.Join(dir, file))
		if l.Progress != nil {
			l.Progress.Add(1)
		}
		switch {
		case err == nil && vec == nil:
			logger.Warn("no face found, skipping", "database", name, "file", file)
		case err == nil:
			c.Append(file, vec)
		case errors.Is(err, worker.ErrWorkerCrashed), errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("load %s database: %w", name, err)
		default:
			logger.Warn("could not load or encode image", "database", name, "file", file, "err", err)
		}
	}

	logger.Info("database loaded", "name", name, "faces", c.Len())
	return c, nil
}

func (l *Loader) firstEncoding(ctx context.Context, path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	faces, err := l.Extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, nil
	}
	return faces[0].Vec, nil
}
