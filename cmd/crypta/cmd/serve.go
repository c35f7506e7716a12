package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cryptadb/crypta/internal/api"
	"github.com/cryptadb/crypta/internal/auth"
	"github.com/cryptadb/crypta/internal/email"
	"github.com/cryptadb/crypta/internal/scheduler"
	"github.com/cryptadb/crypta/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the crypta HTTP gateway",
	Long: `Run the crypta gateway as a long-running daemon.

The daemon runs in the foreground and provides:
  - The HTTP API on the configured port (default: 3000)
  - Scheduled cleanup of expired temporary uploads
  - Scheduled pruning of old login-attempt audit rows

Cron format for [jobs] schedules: minute hour day-of-month month day-of-week
  Examples:
    0 * * * *     = Top of every hour
    30 3 * * *    = 3:30 AM daily

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	if err := s.InitSchema(); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	authSvc, err := auth.NewService(s, cfg.Auth, logger)
	if err != nil {
		return fmt.Errorf("create auth service: %w", err)
	}
	if cfg.Auth.SigningKey == "" {
		logger.Warn("auth.signing_key is not set; tokens will not survive a restart")
	}

	sso, err := auth.NewSSO(cmd.Context(), s, cfg.Auth, authSvc.Tokens(), logger)
	if err != nil {
		return fmt.Errorf("configure sso: %w", err)
	}

	var sender email.Sender
	if cfg.Email.SMTPHost != "" {
		smtp, err := email.NewSMTPSender(cfg.Email, logger)
		if err != nil {
			return fmt.Errorf("configure smtp: %w", err)
		}
		sender = smtp
	} else {
		logger.Warn("email.smtp_host is not set; email dispatch is disabled")
	}

	sched := scheduler.New(logger)
	uploadTTL := time.Duration(cfg.Jobs.UploadTTLHours) * time.Hour
	if err := sched.AddJob("upload-purge", cfg.Jobs.UploadPurge, func(context.Context) (int64, error) {
		n, err := s.PurgeTempUploads(uploadTTL)
		return int64(n), err
	}); err != nil {
		return err
	}
	attemptKeep := time.Duration(cfg.Jobs.AttemptKeepDays) * 24 * time.Hour
	if err := sched.AddJob("attempt-prune", cfg.Jobs.AttemptPrune, func(context.Context) (int64, error) {
		return s.PruneLoginAttempts(attemptKeep)
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	apiServer := api.NewServer(cfg, s, authSvc, sso, sender, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("crypta gateway started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.Port)))
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	if sso != nil {
		fmt.Printf("  SSO issuer: %s\n", cfg.Auth.OIDCIssuer)
	}
	fmt.Println()
	for _, st := range sched.Status() {
		fmt.Printf("  %s: next run at %s\n", st.Name, st.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		return err
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	fmt.Println("Shutdown complete.")

	return nil
}
