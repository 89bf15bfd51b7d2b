package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// DefaultListenAddr is used when FLIPPLY_ADDR is not set.
	DefaultListenAddr = ":8000"
	// DefaultLedgerPath is the CSV file recording listings created locally.
	DefaultLedgerPath = "active_listings.csv"
	// DefaultDBPath holds the vision cache and the encrypted trading token.
	DefaultDBPath = "flipply.db"
)

// Config holds every knob the service reads from the environment.
// All fields are plain typed values; nothing is looked up dynamically
// after startup.
type Config struct {
	// GeminiAPIKey authenticates calls to the Gemini API.
	GeminiAPIKey string

	// eBay developer keyset for the Trading API.
	EbayDevID  string
	EbayAppID  string
	EbayCertID string

	// OAuth client credentials for the Browse API application token.
	EbayClientID     string
	EbayClientSecret string

	// EbayRuName identifies the app in the auth-and-auth sign-in flow.
	EbayRuName string

	// TokenPassphrase encrypts the trading auth token at rest.
	TokenPassphrase string

	ListenAddr string
	LedgerPath string
	DBPath     string

	// Sandbox switches all eBay endpoints to the sandbox environment.
	Sandbox bool
}

// requiredEnvVars must be set for the service to run.
var requiredEnvVars = []string{
	"GEMINI_API_KEY",
	"EBAY_DEV_ID",
	"EBAY_APP_ID",
	"EBAY_CERT_ID",
	"EBAY_CLIENT_ID",
	"EBAY_CLIENT_SECRET",
	"FLIPPLY_TOKEN_KEY",
}

// requiredTradingEnvVars is the subset the Trading API command-line tools
// need; they never call Gemini or the Browse API.
var requiredTradingEnvVars = []string{
	"EBAY_DEV_ID",
	"EBAY_APP_ID",
	"EBAY_CERT_ID",
	"FLIPPLY_TOKEN_KEY",
}

// LoadEnvFile attempts to load environment variables from a local .env file.
// Errors are ignored since the file may not exist.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// CheckRequired returns the names of required environment variables that are
// not set.
func CheckRequired() []string {
	return missingVars(requiredEnvVars)
}

func missingVars(vars []string) []string {
	var missing []string
	for _, v := range vars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// FromEnv builds a Config from the environment. It returns an error naming
// every missing required variable at once.
func FromEnv() (*Config, error) {
	return fromEnv(requiredEnvVars)
}

// FromEnvTrading builds a Config for the Trading API tools, requiring only
// the developer keyset and the token passphrase.
func FromEnvTrading() (*Config, error) {
	return fromEnv(requiredTradingEnvVars)
}

func fromEnv(required []string) (*Config, error) {
	if missing := missingVars(required); len(missing) > 0 {
		return nil, fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		EbayDevID:        os.Getenv("EBAY_DEV_ID"),
		EbayAppID:        os.Getenv("EBAY_APP_ID"),
		EbayCertID:       os.Getenv("EBAY_CERT_ID"),
		EbayClientID:     os.Getenv("EBAY_CLIENT_ID"),
		EbayClientSecret: os.Getenv("EBAY_CLIENT_SECRET"),
		EbayRuName:       os.Getenv("EBAY_RUNAME"),
		TokenPassphrase:  os.Getenv("FLIPPLY_TOKEN_KEY"),
		ListenAddr:       os.Getenv("FLIPPLY_ADDR"),
		LedgerPath:       os.Getenv("FLIPPLY_LEDGER_PATH"),
		DBPath:           os.Getenv("FLIPPLY_DB_PATH"),
		Sandbox:          os.Getenv("EBAY_ENV") != "production",
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = DefaultLedgerPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	return cfg, nil
}
