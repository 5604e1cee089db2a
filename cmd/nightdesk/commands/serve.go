package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nightdesk/nightdesk/config"
	"github.com/nightdesk/nightdesk/delivery"
	"github.com/nightdesk/nightdesk/engine"
	"github.com/nightdesk/nightdesk/engine/job"
	"github.com/nightdesk/nightdesk/engine/remind"
	"github.com/nightdesk/nightdesk/engine/webhook"
	"github.com/nightdesk/nightdesk/errors"
)

// ServeCmd starts the engine and the WebSocket delivery server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nightdesk engine",
	Long: `Start the nightdesk engine in foreground mode.

The engine will:
- Recover jobs left running by a previous crash
- Run the job, reminder, source, webhook, and cleanup loops
- Deliver deduplicated notifications over WebSocket
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		registry := job.NewRegistry()

		intervals := engine.Intervals{
			Jobs:      cfg.Engine.JobInterval(),
			Reminders: cfg.Engine.ReminderInterval(),
			Sources:   cfg.Engine.SourceInterval(),
			Webhooks:  cfg.Engine.WebhookInterval(),
			Cleanup:   cfg.Engine.CleanupInterval(),
			Retention: cfg.Engine.Retention(),
		}
		opts := engine.Options{
			Registry:       registry,
			SubjectID:      cfg.Engine.SubjectID,
			HandlerTimeout: cfg.Engine.HandlerTimeout(),
			QueueSize:      cfg.Engine.QueueSize,
		}

		if cfg.Webhook.PublicURL != "" && len(cfg.Webhook.Resources) > 0 {
			provider := webhook.NewGitHubProvider(cfg.Webhook.ProviderBaseURL, cfg.Webhook.Token)
			opts.Registrar = webhook.NewRegistrar(
				provider,
				cfg.Webhook.Resources,
				cfg.Webhook.PublicURL,
				cfg.Webhook.RequestsPerSecond,
				log,
			)
		}

		eng := engine.New(ctx, database, intervals, opts, log)

		// Hot-reload: a changed webhook public URL (tunnel restart) rolls
		// the registrar to a new generation on the next tick.
		if path, _ := cmd.InheritedFlags().GetString("config"); opts.Registrar != nil {
			if path == "" {
				if dir, err := config.DefaultDir(); err == nil {
					path = filepath.Join(dir, "nightdesk.toml")
				}
			}
			if path != "" {
				if watcher, err := config.NewWatcher(path, log); err != nil {
					log.Warnw("Config watcher unavailable", "error", err)
				} else {
					registrar := opts.Registrar
					watcher.OnReload(func(next *config.Config) error {
						if next.Webhook.PublicURL != "" {
							registrar.SetEndpoint(next.Webhook.PublicURL)
						}
						return nil
					})
					watcher.Start()
					defer watcher.Stop()
				}
			}
		}

		// Handlers get wired after the engine exists so they can share
		// its notifier.
		registry.Register(remind.NewJobHandler(eng.Notifier()))

		hub := delivery.NewHub(cfg.Server.AllowedOrigins, log)
		go hub.Run(ctx, eng.Notifier().Outbound())

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: mux,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("Delivery server failed", "error", err)
			}
		}()

		if err := eng.Start(); err != nil {
			return err
		}

		fmt.Println("nightdesk engine started")
		fmt.Printf("  Database: %s\n", cfg.Database.Path)
		fmt.Printf("  Delivery: ws://localhost:%d/ws\n", cfg.Server.Port)
		fmt.Printf("  Job interval: %v\n", intervals.Jobs)
		if opts.Registrar != nil {
			fmt.Printf("  Webhook endpoint: %s\n", cfg.Webhook.PublicURL)
		}
		fmt.Println("\nPress Ctrl+C for graceful shutdown")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")

		eng.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnw("Delivery server shutdown error", "error", err)
		}

		cancel()

		fmt.Println("nightdesk engine stopped")
		return nil
	},
}
