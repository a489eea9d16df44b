package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "mailpulse/cmd/mailpulse/docs"
	"mailpulse/internal/admin"
	"mailpulse/internal/config"
	"mailpulse/internal/constants"
	"mailpulse/internal/logger"
	"mailpulse/internal/subscription"
	"mailpulse/pkg/bootstrap"
	"mailpulse/pkg/clock"
	"mailpulse/pkg/logging"
)

var (
	configFile string
)

// @title           Mailpulse API
// @version         1.0
// @description     Mailbox change-notification webhook and subscription administration

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8000
// @BasePath  /api/v1

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailpulse",
		Short: "Mailbox push notifications into a search index",
		Long:  "Keeps a mail change-notification subscription alive and indexes every new message it reports",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, environment variables are always applied)")

	rootCmd.AddCommand(serveCmd(), indexWorkerCmd(), statusCmd(), teardownCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup(serviceName string) (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging, serviceName)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook, the renewal scheduler and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(constants.ServiceName)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			log.InfowCtx(ctx, "Starting mailpulse", "resource", cfg.Graph.Resource())

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				_ = app.Shutdown(context.Background())
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func indexWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index-worker",
		Short: "Consume published documents and write them to the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(constants.IndexWorkerName)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			log.InfowCtx(ctx, "Starting index worker", "topic", cfg.Indexing.Topic)

			worker := NewWorker(cfg, log)
			if err := worker.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize index worker", "error", err)
				_ = worker.Shutdown(context.Background())
				return err
			}

			if err := worker.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Index worker error", "error", err)
				return err
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the persisted subscription record",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(constants.ServiceName)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			connector := bootstrap.NewDatabaseConnector(cfg, log)
			conns, err := connector.ConnectStore(ctx)
			if err != nil {
				return err
			}
			defer connector.ShutdownDatabases(context.Background(), conns)

			store, err := subscription.NewStore(cfg, conns)
			if err != nil {
				return err
			}

			now := clock.Real().Now()

			if all {
				lister, ok := store.(subscription.Lister)
				if !ok {
					return fmt.Errorf("store %q cannot list records", cfg.Subscription.Store)
				}
				recs, err := lister.List(ctx)
				if err != nil {
					return fmt.Errorf("list subscription records: %w", err)
				}
				out := make([]admin.SubscriptionResponse, 0, len(recs))
				for _, rec := range recs {
					out = append(out, admin.ToResponse(rec, now))
				}
				return printJSON(cmd, out)
			}

			rec, err := store.Load(ctx, cfg.Graph.Resource())
			if err != nil {
				return fmt.Errorf("load subscription record: %w", err)
			}

			return printJSON(cmd, admin.ToResponse(*rec, now))
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list every stored record, including stale resources")
	return cmd
}

func teardownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "teardown",
		Short: "Delete the provider subscription and mark the record Deleted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(constants.ServiceName)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signalContext()
			defer cancel()

			connector := bootstrap.NewDatabaseConnector(cfg, log)
			conns, err := connector.ConnectStore(ctx)
			if err != nil {
				return err
			}
			defer connector.ShutdownDatabases(context.Background(), conns)

			manager, _, err := newManager(cfg, conns, log)
			if err != nil {
				return err
			}

			if err := manager.Teardown(ctx); err != nil {
				return fmt.Errorf("teardown subscription: %w", err)
			}

			rec, ok := manager.Snapshot()
			if !ok {
				log.InfowCtx(ctx, "No subscription record to tear down")
				return nil
			}
			return printJSON(cmd, admin.ToResponse(rec, clock.Real().Now()))
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
