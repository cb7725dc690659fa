package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const DATE_PARSE_FORMAT = "2006-01-02"

// Early-release policy values. "immediate" frees the remaining days of a
// reservation window as soon as the item comes back early; "hold" keeps the
// claim until the original end date.
const (
	EARLY_RELEASE_IMMEDIATE = "immediate"
	EARLY_RELEASE_HOLD      = "hold"
)

var API_ENV = os.Getenv("API_ENV")

var (
	LateFeeMultiplier  = envFloat("LATE_FEE_MULTIPLIER", 1.5)
	CheckoutSessionTTL = envMinutes("CHECKOUT_SESSION_TTL_MINUTES", 30)
	EarlyReleasePolicy = envString("EARLY_RELEASE_POLICY", EARLY_RELEASE_IMMEDIATE)
	SweepInterval      = envMinutes("SWEEP_INTERVAL_MINUTES", 30)
	// Window within which a refund's completed event is expected back; the
	// in-flight marker expires with it so a lost event cannot wedge retries.
	RefundClaimTTL = envMinutes("REFUND_CLAIM_TTL_MINUTES", 60)
)

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envMinutes(key string, fallback int) time.Duration {
	m, err := strconv.Atoi(os.Getenv(key))
	if err != nil || m <= 0 {
		m = fallback
	}
	return time.Duration(m) * time.Minute
}
