package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/digitaldrywood/opsboard/internal/analytics"
	"github.com/digitaldrywood/opsboard/internal/config"
	"github.com/digitaldrywood/opsboard/internal/google"
	"github.com/digitaldrywood/opsboard/internal/lease"
	"github.com/digitaldrywood/opsboard/internal/logging"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
	"github.com/digitaldrywood/opsboard/internal/routine"
	"github.com/digitaldrywood/opsboard/internal/sheet"
	"github.com/digitaldrywood/opsboard/internal/task"
)

// app holds what every subcommand needs. It is filled in by open.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	closers    []io.Closer

	store     sheet.Store
	engine    *reconcile.Engine
	routines  *routine.Service
	tasks     *task.Service
	analytics *analytics.Service
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("opsboard: %v", err)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "opsboard",
		Short:         "Operations dashboard backend over Google Sheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a config file (yaml, json or toml)")

	root.AddCommand(
		newServeCommand(a),
		newRoutinesCommand(a),
		newTasksCommand(a),
		newAnalyticsCommand(a),
	)
	return root
}

// open loads configuration and wires the services. With memory set the
// spreadsheet is replaced by an in-process store.
func (a *app) open(ctx context.Context, memory bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, logCloser := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	a.logger = logger
	a.closers = append(a.closers, logCloser)
	slog.SetDefault(logger)

	if memory {
		a.store = sheet.NewMemoryStore()
		logger.Warn("using in-memory store, nothing is persisted")
	} else {
		if err := cfg.RequireSheets(); err != nil {
			return err
		}
		client, err := google.OpenSheets(ctx, cfg.SpreadsheetID, cfg.Credentials)
		if err != nil {
			return err
		}
		a.store = client
	}

	var locker lease.Locker = lease.Nop{}
	if cfg.Lease.DB != "" {
		l, err := lease.Open(cfg.Lease.DB, lease.Options{TTL: cfg.Lease.TTL, Wait: cfg.Lease.Wait})
		if err != nil {
			return fmt.Errorf("open lease database: %w", err)
		}
		locker = l
		a.closers = append(a.closers, l)
	}

	a.engine = reconcile.New(a.store, reconcile.WithLocker(locker))
	a.routines = routine.NewService(a.engine, cfg.Location)
	a.tasks = task.NewService(a.engine, cfg.Location)
	a.analytics = analytics.NewService(a.engine)
	return nil
}

func (a *app) close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// openSheets is the PreRunE of every command that talks to the spreadsheet.
func (a *app) openSheets(cmd *cobra.Command, args []string) error {
	return a.open(cmd.Context(), false)
}

func init() {
	log.SetFlags(0)
	log.SetOutput(os.Stderr)
}
