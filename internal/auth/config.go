package auth

import "time"

// Config defines fields used for parsing auth settings from environment variables
type Config struct {
	JWTSecret         string        `env:"JWT_SECRET,required"`
	AccessTTL         time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL        time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`
	VerificationLink  string        `env:"VERIFICATION_LINK" envDefault:"http://localhost:8000/verify"`
	PasswordResetLink string        `env:"PASSWORD_RESET_LINK" envDefault:"http://localhost:8000/reset-password"`
}
