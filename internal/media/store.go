package media

import (
	"context"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"io"
	"marketplace-api/internal/storage"
)

// Store normalises every image before handing it to the provider
type Store struct {
	logger   *zap.SugaredLogger
	provider Uploader
	maxSide  int
}

var _ Uploader = (*Store)(nil)

func NewStore(logger *zap.SugaredLogger, provider Uploader, maxSide int) *Store {
	return &Store{
		logger:   logger,
		provider: provider,
		maxSide:  maxSide,
	}
}

func (s *Store) Upload(ctx context.Context, r io.Reader, t Transform) (storage.Image, error) {
	buf, err := Normalize(r, s.maxSide)
	if err != nil {
		return storage.Image{}, err
	}
	return s.provider.Upload(ctx, buf, t)
}

func (s *Store) Destroy(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.provider.Destroy(ctx, ids...)
}

// UploadAll validates every file before uploading any, then uploads concurrently
// Results keep the order of files. On failure the images already stored are destroyed
func (s *Store) UploadAll(ctx context.Context, files []io.Reader, t Transform) ([]storage.Image, error) {
	normalized := make([]io.Reader, len(files))
	for i, f := range files {
		buf, err := Normalize(f, s.maxSide)
		if err != nil {
			return nil, err
		}
		normalized[i] = buf
	}

	images := make([]storage.Image, len(files))
	var g multierror.Group
	for i := range normalized {
		i := i
		g.Go(func() error {
			img, err := s.provider.Upload(ctx, normalized[i], t)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}

	if err := g.Wait().ErrorOrNil(); err != nil {
		var stored []string
		for _, img := range images {
			if img.ID != "" {
				stored = append(stored, img.ID)
			}
		}
		if cleanupErr := s.Destroy(context.Background(), stored...); cleanupErr != nil {
			s.logger.Warnf("Failed to remove %d orphaned images: %v", len(stored), cleanupErr)
		}
		return nil, err
	}

	return images, nil
}
