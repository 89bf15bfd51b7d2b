// post-listing posts a canned test listing to verify the Trading API keyset
// and stored auth token end to end. With -end it ends the listing again after
// a short delay and removes it from the ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/m3l0x42/flipply/internal/config"
	"github.com/m3l0x42/flipply/internal/ebay"
	"github.com/m3l0x42/flipply/internal/ledger"
	"github.com/m3l0x42/flipply/internal/storage"
)

func main() {
	var (
		title     = flag.String("title", "Test listing - please ignore", "listing title")
		price     = flag.Float64("price", 9.99, "start price in USD")
		condition = flag.String("condition", "excellent", "item condition")
		imagePath = flag.String("image", "", "optional image file to attach")
		end       = flag.Bool("end", false, "end the listing after posting")
		verify    = flag.Bool("verify", false, "VerifyAddItem only, do not create the listing")
	)
	flag.Parse()

	config.LoadEnvFile()

	cfg, err := config.FromEnvTrading()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	apiBase := ebay.SandboxBaseURL
	viewURLBase := "https://sandbox.ebay.com/itm/"
	if !cfg.Sandbox {
		fmt.Fprintf(os.Stderr, "Refusing to post a test listing against production\n")
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath, storage.DeriveKey(cfg.TokenPassphrase))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database at %s: %v\n", cfg.DBPath, err)
		os.Exit(1)
	}
	defer store.Close()

	token, _, err := store.GetTradingToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading token: %v\n", err)
		os.Exit(1)
	}
	if token == "" {
		fmt.Fprintf(os.Stderr, "No trading auth token stored; run ebay-auth first\n")
		os.Exit(1)
	}

	trading := ebay.NewTradingClient(apiBase, ebay.TradingCredentials{
		DevID:  cfg.EbayDevID,
		AppID:  cfg.EbayAppID,
		CertID: cfg.EbayCertID,
	})
	trading.SetAuthToken(token)

	req := &ebay.ListingRequest{
		Title:       *title,
		Description: "Posted by the post-listing smoke test. Will be ended shortly.",
		Price:       *price,
		Condition:   *condition,
	}
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading image: %v\n", err)
			os.Exit(1)
		}
		req.ImageData = data
		req.ImageMIMEType = "image/jpeg"
	}

	ctx := context.Background()
	listingLedger := ledger.New(cfg.LedgerPath)
	listings := ebay.NewListingService(trading, listingLedger, viewURLBase)

	if *verify {
		if err := listings.VerifyListing(ctx, req); err != nil {
			fmt.Fprintf(os.Stderr, "VerifyAddItem failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("VerifyAddItem: Success")
		return
	}

	result, err := listings.CreateListing(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CreateListing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status:  %s\n", result.Status)
	fmt.Printf("ItemID:  %s\n", result.ItemID)
	fmt.Printf("ViewURL: %s\n", result.ListingURL)

	if *end {
		fmt.Println("Ending listing in 5 seconds...")
		time.Sleep(5 * time.Second)
		found, err := listings.EndListing(ctx, result.ItemID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "EndListing failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Ended (ledger entry removed: %v)\n", found)
	}
}
