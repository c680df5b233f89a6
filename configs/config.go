package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

func Config(key string) string {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	return os.Getenv(key)
}

func ConfigInt(key string, fallback int) int {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

func ConfigFloat(key string, fallback float64) float64 {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using default %g", key, raw, fallback)
		return fallback
	}
	return v
}

// Settlement knobs with their platform defaults. Amount bounds are in minor
// units (cents) to match what the gateway reports.
func PlatformFeePercent() float64 { return ConfigFloat("PLATFORM_FEE_PERCENT", 30) }
func MinPaymentCents() int64      { return int64(ConfigInt("MIN_PAYMENT_CENTS", 100)) }
func MaxPaymentCents() int64      { return int64(ConfigInt("MAX_PAYMENT_CENTS", 1000000)) }
func SettleRetryAttempts() int    { return ConfigInt("SETTLE_RETRY_ATTEMPTS", 3) }
func SettleRetryDelayMs() int     { return ConfigInt("SETTLE_RETRY_DELAY_MS", 200) }

func DefaultMinimumPayout() float64 { return ConfigFloat("DEFAULT_MINIMUM_PAYOUT", 50) }
func DefaultPayoutSchedule() string {
	if s := Config("DEFAULT_PAYOUT_SCHEDULE"); s != "" {
		return s
	}
	return "monthly"
}