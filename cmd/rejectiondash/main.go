package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"rejectiondash/internal/auth"
	"rejectiondash/internal/config"
	"rejectiondash/internal/gmail"
	"rejectiondash/internal/quotes"
	"rejectiondash/internal/scan"
	"rejectiondash/internal/server"
	"rejectiondash/internal/store"
	"rejectiondash/internal/tui"
)

var (
	configPath = flag.String("config", "", "Path to config file (default ~/.config/rejectiondash/config.yaml)")
	serve      = flag.Bool("serve", false, "Run the HTTP API instead of the terminal dashboard")
)

func main() {
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	scanner := scan.NewScanner(scan.Options{
		Concurrency:  cfg.Scan.Concurrency,
		MaxPages:     cfg.Scan.MaxPages,
		PageSize:     cfg.Scan.PageSize,
		After:        cfg.Scan.After,
		NotableLimit: cfg.Scan.NotableLimit,
	}, gmail.NewMailboxForToken, logger)

	if *serve {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		if err := runServer(cfg, scanner, logger); err != nil {
			logger.WithError(err).Fatal("Server error")
		}
		return
	}

	if err := runDashboard(cfg, scanner, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cfg *config.Config, scanner *scan.Scanner, logger *logrus.Logger) error {
	srv := server.New(scanner, auth.NewGoogleResolver(), quotes.New(nil), cfg.Server.AllowedOrigins, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func runDashboard(cfg *config.Config, scanner *scan.Scanner, logger *logrus.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger.SetOutput(logFile)

	oauthCfg, err := auth.ConfigFromFile(cfg.Auth.ClientSecretPath)
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open token store: %w", err)
	}
	defer db.Close()

	authenticator := auth.NewAuthenticator(oauthCfg, db, logger)
	appModel := tui.NewAppModel(authenticator, auth.NewGoogleResolver(), scanner, quotes.New(nil))
	p := tea.NewProgram(&appModel, tea.WithAltScreen())
	appModel.SetProgram(p)
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}
