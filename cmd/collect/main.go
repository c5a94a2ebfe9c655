package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/digitaldrywood/opsboard/internal/analytics"
	"github.com/digitaldrywood/opsboard/internal/config"
	"github.com/digitaldrywood/opsboard/internal/google"
	"github.com/digitaldrywood/opsboard/internal/lease"
	"github.com/digitaldrywood/opsboard/internal/logging"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a config file")
		date       = flag.String("date", "", "Day to collect (YYYY-MM-DD, defaults to yesterday)")
	)
	flag.Parse()

	os.Exit(run(*configPath, *date))
}

// run returns the process exit code. Deferred closes run before main exits.
func run(configPath, date string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	if err := cfg.RequireSheets(); err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	if len(cfg.Channels) == 0 {
		log.Printf("No channels configured (set channels in the config file or YOUTUBE_CREDENTIALS_CHANNEL1)")
		return 1
	}

	day := date
	if day == "" {
		day = time.Now().In(cfg.Location).AddDate(0, 0, -1).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		log.Printf("Invalid -date %q: %v", day, err)
		return 1
	}

	logger, closer := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := google.OpenSheets(ctx, cfg.SpreadsheetID, cfg.Credentials)
	if err != nil {
		log.Printf("Failed to open spreadsheet: %v", err)
		return 1
	}

	var locker lease.Locker = lease.Nop{}
	if cfg.Lease.DB != "" {
		l, err := lease.Open(cfg.Lease.DB, lease.Options{TTL: cfg.Lease.TTL, Wait: cfg.Lease.Wait})
		if err != nil {
			log.Printf("Failed to open lease database: %v", err)
			return 1
		}
		defer l.Close()
		locker = l
	}

	sources := make([]analytics.Source, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		client, err := google.OpenAnalytics(ctx, ch.Credentials, cfg.Currency)
		if err != nil {
			log.Printf("Failed to open analytics for %s: %v", ch.Name, err)
			return 1
		}
		sources = append(sources, analytics.Source{ChannelID: ch.ID, Name: ch.Name, Metrics: client})
	}

	engine := reconcile.New(store, reconcile.WithLocker(locker))
	results, err := analytics.NewCollector(engine, sources, logger).Collect(ctx, day)

	fmt.Printf("📊 Collection for %s\n", day)
	for _, r := range results {
		switch r.Outcome {
		case analytics.Created:
			fmt.Printf("  ✅ %-20s views %s  revenue ₩%s  RPM %.1f\n",
				r.Channel, humanize.Comma(r.Row.Views), humanize.Comma(r.Row.Revenue), r.Row.RPM)
		case analytics.Skipped:
			fmt.Printf("  ⏭  %-20s already recorded\n", r.Channel)
		case analytics.NoData:
			fmt.Printf("  ∅  %-20s no data yet\n", r.Channel)
		case analytics.Failed:
			fmt.Printf("  ❌ %-20s %s\n", r.Channel, r.Error)
		}
	}
	if err != nil {
		log.Printf("Collection finished with errors: %v", err)
		return 1
	}
	return 0
}
