package media

import (
	"context"
	"errors"
	"fmt"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"io"
	"marketplace-api/internal/storage"
	"strings"
)

// ErrProvider wraps failures reported by the storage provider
var ErrProvider = errors.New("image provider failure")

// Cloudinary implements Uploader on the Cloudinary upload API
type Cloudinary struct {
	logger *zap.SugaredLogger
	cld    *cloudinary.Cloudinary
	folder string
}

var _ Uploader = (*Cloudinary)(nil)

func NewCloudinary(logger *zap.SugaredLogger, cfg Config) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, err
	}
	cld.Config.URL.Secure = true

	return &Cloudinary{
		logger: logger,
		cld:    cld,
		folder: cfg.Folder,
	}, nil
}

// transformation renders t in the provider's URL transformation syntax e.g. c_thumb,g_face,h_300,w_300
func transformation(t Transform) string {
	var parts []string
	if t.Crop != "" {
		parts = append(parts, "c_"+t.Crop)
	}
	if t.Gravity != "" {
		parts = append(parts, "g_"+t.Gravity)
	}
	if t.Height > 0 {
		parts = append(parts, fmt.Sprintf("h_%d", t.Height))
	}
	if t.Width > 0 {
		parts = append(parts, fmt.Sprintf("w_%d", t.Width))
	}
	return strings.Join(parts, ",")
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, t Transform) (storage.Image, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:         c.folder,
		Transformation: transformation(t),
	})
	if err != nil {
		return storage.Image{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if res.Error.Message != "" {
		return storage.Image{}, fmt.Errorf("%w: %s", ErrProvider, res.Error.Message)
	}

	c.logger.Debugf("Uploaded image (%s)", res.PublicID)

	return storage.Image{ID: res.PublicID, URL: res.SecureURL}, nil
}

func (c *Cloudinary) Destroy(ctx context.Context, ids ...string) error {
	var g multierror.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: id})
			if err != nil {
				return fmt.Errorf("%w: destroy %s: %v", ErrProvider, id, err)
			}
			if res.Error.Message != "" {
				return fmt.Errorf("%w: destroy %s: %s", ErrProvider, id, res.Error.Message)
			}
			c.logger.Debugf("Destroyed image (%s): %s", id, res.Result)
			return nil
		})
	}
	return g.Wait().ErrorOrNil()
}
