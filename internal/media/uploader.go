// Package media stores user uploaded images at the object storage provider.
package media

import (
	"context"
	"io"
	"marketplace-api/internal/storage"
)

// Transform is applied by the provider on upload
type Transform struct {
	Width   int
	Height  int
	Crop    string
	Gravity string
}

var (
	// Avatar is a 300x300 thumbnail centered on a face
	Avatar = Transform{Width: 300, Height: 300, Crop: "thumb", Gravity: "face"}
	// Listing fills product images into a 1280x720 frame
	Listing = Transform{Width: 1280, Height: 720, Crop: "fill"}
)

// Uploader stores and removes images
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, t Transform) (storage.Image, error)
	// Destroy removes every image, failures are aggregated
	Destroy(ctx context.Context, ids ...string) error
}
