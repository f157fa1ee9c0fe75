package config

import (
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// PayPal holds the gateway credentials. They are read once at startup and
// never mutated afterwards.
type PayPal struct {
	BaseURL   string
	ClientID  string
	Secret    string
	ReturnURL string
	CancelURL string
}

type Config struct {
	Port         string
	PostgresURL  string
	KafkaBrokers []string

	JWTSigningKey string
	JWTTTL        time.Duration

	PayPal PayPal

	// Frontend pages the payment callbacks redirect to. The service never
	// renders the final message itself.
	FrontendSuccessURL string
	FrontendFailureURL string
	FrontendCancelURL  string

	EmailServiceURL string
	UploadDir       string

	ReconcileInterval time.Duration
	ReconcileAfter    time.Duration
}

func Load() *Config {
	return &Config{
		Port:          getenv("PORT", "8080"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTTTL:        getduration("JWT_TTL", 168*time.Hour),
		PayPal: PayPal{
			BaseURL:   getenv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:  os.Getenv("PAYPAL_CLIENT_ID"),
			Secret:    os.Getenv("PAYPAL_SECRET"),
			ReturnURL: os.Getenv("PAYPAL_RETURN_URL"),
			CancelURL: os.Getenv("PAYPAL_CANCEL_URL"),
		},
		FrontendSuccessURL: getenv("FRONTEND_SUCCESS_URL", "/payment/result?status=success"),
		FrontendFailureURL: getenv("FRONTEND_FAILURE_URL", "/payment/result?status=failure"),
		FrontendCancelURL:  getenv("FRONTEND_CANCEL_URL", "/payment/result?status=cancelled"),
		EmailServiceURL:    os.Getenv("EMAIL_SERVICE_URL"),
		UploadDir:          getenv("UPLOAD_DIR", "uploads"),
		ReconcileInterval:  getduration("RECONCILE_INTERVAL", time.Minute),
		ReconcileAfter:     getduration("RECONCILE_AFTER", 5*time.Minute),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
