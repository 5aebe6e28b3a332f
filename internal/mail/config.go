package mail

// Config defines fields used for parsing mail settings from environment variables
type Config struct {
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	SendGridHost   string `env:"SENDGRID_HOST" envDefault:"https://api.sendgrid.com"`
	From           string `env:"MAIL_FROM" envDefault:"no-reply@marketplace.local"`
	FromName       string `env:"MAIL_FROM_NAME" envDefault:"Marketplace"`
}
