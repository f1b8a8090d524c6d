package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dev/bravebird/notiwatch/pkg/browser"
	"dev/bravebird/notiwatch/pkg/config"
	"dev/bravebird/notiwatch/pkg/logging"
	"dev/bravebird/notiwatch/pkg/prompt"
	"dev/bravebird/notiwatch/pkg/stream"
	"dev/bravebird/notiwatch/pkg/watcher"
)

const loginPrompt = "Log in using the browser window, then press Enter to start watching... "

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "notiwatch",
		Short: "Watch a social feed's notifications page and log new entries",
		Long: `notiwatch opens a browser, waits for you to log in by hand, then opens the
notifications page and logs every notification that appears while it runs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error loading config:", err)
				return err
			}
			if err := applyFlags(cmd, cfg); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, "Invalid config:", err)
				return err
			}

			logger, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error setting up logging:", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.WithError(err).Error("Watcher stopped")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "notiwatch.yaml", "path to the YAML config file")
	f.Bool("headless", false, "run the browser without a window")
	f.Bool("stealth", false, "open the page with go-rod/stealth evasions")
	f.String("login-url", "", "page opened for the manual login")
	f.String("url", "", "notifications page to watch")
	f.String("container", "", "selector of the notification container")
	f.String("item", "", "selector of one notification inside the container")
	f.String("listen", "", "address for the websocket log relay, e.g. :8080")
	f.String("log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

// loadConfig reads the config file. Only the default location may be missing.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if cmd.Flags().Changed("config") {
		return config.Load(path)
	}
	return config.LoadOptional(path)
}

// applyFlags overrides cfg with every flag set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	stringFlags := map[string]*string{
		"login-url": &cfg.Site.LoginURL,
		"url":       &cfg.Site.NotificationsURL,
		"container": &cfg.Site.ContainerSelector,
		"item":      &cfg.Site.ItemSelector,
		"listen":    &cfg.Stream.Listen,
		"log-level": &cfg.Log.Level,
	}
	for name, dst := range stringFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	boolFlags := map[string]*bool{
		"headless": &cfg.Browser.Headless,
		"stealth":  &cfg.Browser.Stealth,
	}
	for name, dst := range boolFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if cfg.Stream.Listen != "" {
		shutdown := startRelay(cfg.Stream.Listen, logger)
		defer shutdown()
	}

	session, err := browser.Launch(cfg.Browser, logger)
	if err != nil {
		return err
	}
	log := logger.WithField("session", session.ID)
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser session")
		}
	}()

	if err := session.Navigate(ctx, cfg.Site.LoginURL); err != nil {
		return err
	}

	if !prompt.IsInteractive(os.Stdin) {
		log.Warn("Standard input is not a terminal, login confirmation is read from it anyway")
	}
	if err := prompt.Confirm(ctx, os.Stdin, os.Stderr, loginPrompt); err != nil {
		return fmt.Errorf("login was not confirmed: %w", err)
	}

	if err := session.Navigate(ctx, cfg.Site.NotificationsURL); err != nil {
		return err
	}
	if err := session.WaitFor(ctx, cfg.Site.ContainerSelector, cfg.Site.WaitTimeout); err != nil {
		return err
	}

	locator := browser.NewPageLocator(session.Page, cfg.Site.ContainerSelector)
	w := watcher.New(locator, cfg.Site.ItemSelector, log)
	if err := w.Start(ctx); err != nil {
		return err
	}

	source := browser.NewMutationSource(session.Page, cfg.Site.ContainerSelector, log)
	defer func() {
		if err := source.Close(); err != nil {
			log.WithError(err).Warn("Failed to stop mutation observer")
		}
	}()

	log.Info("Watching for new notifications, press Ctrl+C to stop")
	err = w.Run(ctx, source)
	if errors.Is(err, context.Canceled) {
		log.WithField("seen", w.Seen()).Info("Shutting down")
		return nil
	}
	return err
}

// startRelay serves the websocket relay and returns its shutdown function
func startRelay(addr string, logger *logrus.Logger) func() {
	hub := stream.NewHub()
	logger.AddHook(hub)

	server := stream.NewServer(addr, stream.NewRouter(hub, logger))
	go func() {
		logger.WithField("addr", addr).Info("Log relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Log relay failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Log relay forced to shut down")
		}
	}
}
