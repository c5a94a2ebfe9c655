package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/digitaldrywood/opsboard/internal/config"
	"github.com/digitaldrywood/opsboard/internal/google"
)

const outputDir = ".local"

func main() {
	var (
		configPath = flag.String("config", "", "Path to a config file")
		channel    = flag.Int("channel", 1, "Channel number the credentials belong to")
		verify     = flag.Bool("verify", false, "Also check access to the configured spreadsheet")
	)
	flag.Parse()

	fmt.Println("=== Ops Board YouTube Authentication ===")
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	secret, err := os.ReadFile(cfg.OAuth.ClientSecretPath)
	if err != nil {
		log.Fatalf("Unable to read client secret file: %v", err)
	}

	auth, err := google.NewAuth(secret, cfg.OAuth.RedirectURL, google.AnalyticsScopes...)
	if err != nil {
		log.Fatalf("Failed to create auth client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Triggers the browser consent flow.
	creds, err := auth.AuthorizedUserJSON(ctx)
	if err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}

	if err := os.MkdirAll(outputDir, 0o700); err != nil {
		log.Fatalf("Unable to create %s: %v", outputDir, err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("credentials_channel%d.json", *channel))
	if err := os.WriteFile(path, creds, 0o600); err != nil {
		log.Fatalf("Unable to save credentials: %v", err)
	}

	fmt.Println("✅ Authentication successful!")
	fmt.Printf("🔑 Credentials saved to %s\n", path)
	fmt.Println()
	fmt.Println("Point the collector at them with either:")
	fmt.Printf("  YOUTUBE_CREDENTIALS_CHANNEL%d=\"$(cat %s)\"\n", *channel, path)
	fmt.Printf("  channels[%d].credentials_path: %s   (config file)\n", *channel-1, path)

	if *verify {
		if err := cfg.RequireSheets(); err != nil {
			log.Fatalf("Cannot verify spreadsheet: %v", err)
		}
		sheets, err := google.OpenSheets(ctx, cfg.SpreadsheetID, cfg.Credentials)
		if err != nil {
			log.Fatalf("Failed to open spreadsheet: %v", err)
		}
		title, err := sheets.Title(ctx)
		if err != nil {
			log.Fatalf("Failed to access spreadsheet: %v", err)
		}
		fmt.Printf("📊 Connected to spreadsheet: %s\n", title)
	}
}
