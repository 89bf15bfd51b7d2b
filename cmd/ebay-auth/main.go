// ebay-auth walks through the Trading API auth-and-auth flow: it requests a
// session id, prints the sign-in URL for the seller to approve in a browser,
// then exchanges the approved session for a user auth token and stores it
// encrypted in the local database.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/m3l0x42/flipply/internal/config"
	"github.com/m3l0x42/flipply/internal/ebay"
	"github.com/m3l0x42/flipply/internal/storage"
)

func main() {
	config.LoadEnvFile()

	cfg, err := config.FromEnvTrading()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.EbayRuName == "" {
		fmt.Fprintf(os.Stderr, "EBAY_RUNAME not set\n")
		os.Exit(1)
	}

	apiBase := ebay.SandboxBaseURL
	signInBase := ebay.SandboxSignInURL
	if !cfg.Sandbox {
		apiBase = ebay.ProductionBaseURL
		signInBase = ebay.ProductionSignInURL
	}

	trading := ebay.NewTradingClient(apiBase, ebay.TradingCredentials{
		DevID:  cfg.EbayDevID,
		AppID:  cfg.EbayAppID,
		CertID: cfg.EbayCertID,
	})

	ctx := context.Background()

	sessionID, err := trading.GetSessionID(ctx, cfg.EbayRuName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting session id: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Open this URL in a browser and sign in with the seller account:")
	fmt.Println()
	fmt.Println("  " + ebay.SignInURL(signInBase, cfg.EbayRuName, sessionID))
	fmt.Println()
	fmt.Print("Press ENTER once you have approved the application... ")
	bufio.NewReader(os.Stdin).ReadString('\n')

	token, expiry, err := trading.FetchToken(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching token: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath, storage.DeriveKey(cfg.TokenPassphrase))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database at %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.SaveTradingToken(token, expiry); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token stored in %s", cfg.DBPath)
	if !expiry.IsZero() {
		fmt.Printf(" (expires %s)", expiry.Format("2006-01-02"))
	}
	fmt.Println()
}
