package media

import (
	"bytes"
	"errors"
	"github.com/disintegration/imaging"
	"image"
	"io"
)

// ErrNotImage is returned when an upload cannot be decoded as an image
var ErrNotImage = errors.New("invalid file type, files must be an image")

// Normalize decodes r, applies EXIF orientation, fits it within maxSide and re-encodes it as JPEG
func Normalize(r io.Reader, maxSide int) (*bytes.Buffer, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrNotImage
	}

	img = fit(img, maxSide)

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf, nil
}

func fit(img image.Image, maxSide int) image.Image {
	if maxSide <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}
