package media

// Config defines fields used for parsing object storage settings from environment variables
type Config struct {
	CloudinaryURL string `env:"CLOUDINARY_URL"`
	Folder        string `env:"CLOUDINARY_FOLDER" envDefault:"marketplace"`
	// MaxSide bounds the longest side of normalised uploads
	MaxSide int `env:"UPLOAD_MAX_SIDE" envDefault:"1600"`
}
