package config // package config loads application configuration from environment variables

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets for payment providers are optional: a
// provider whose key is empty is simply not registered and checkout
// requests naming it are rejected.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	TicketSigningSecret string // HMAC key for QR ticket payloads
	OrderTTLMin         int    // minutes a PENDING order keeps its inventory
	PlansFile           string // path to the organizer plan catalog (optional)

	Payments PaymentConfig
}

// PaymentConfig groups provider credentials and endpoints.
type PaymentConfig struct {
	Currency string // lower-case ISO code sent to providers, "brl" by default

	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string

	PagarmeSecretKey     string
	PagarmePublicKey     string
	PagarmeBaseURL       string
	PagarmeWebhookSecret string

	PagSeguroToken     string
	PagSeguroBaseURL   string
	PagSeguroNotifyURL string // webhook URL sent with each order (optional)
}

// LoadEnvFile loads key=value pairs from path into the process environment
// without overriding variables that are already set.  A missing file is
// not an error so deployments that inject env vars directly keep working.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		TicketSigningSecret: must("TICKET_SIGNING_SECRET"),
		OrderTTLMin:         envInt("ORDER_TTL_MIN", 15),
		PlansFile:           os.Getenv("PLANS_FILE"),

		Payments: LoadPaymentConfig(),
	}
}

// LoadPaymentConfig reads provider settings.  Base URLs default to the
// providers' production endpoints.
func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		Currency: strings.ToLower(envStr("PAYMENT_CURRENCY", "brl")),

		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripePublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),

		PagarmeSecretKey:     os.Getenv("PAGARME_SECRET_KEY"),
		PagarmePublicKey:     os.Getenv("PAGARME_PUBLIC_KEY"),
		PagarmeBaseURL:       strings.TrimRight(envStr("PAGARME_BASE_URL", "https://api.pagar.me/core/v5"), "/"),
		PagarmeWebhookSecret: os.Getenv("PAGARME_WEBHOOK_SECRET"),

		PagSeguroToken:     os.Getenv("PAGSEGURO_TOKEN"),
		PagSeguroBaseURL:   strings.TrimRight(envStr("PAGSEGURO_BASE_URL", "https://api.pagseguro.com"), "/"),
		PagSeguroNotifyURL: os.Getenv("PAGSEGURO_NOTIFICATION_URL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
