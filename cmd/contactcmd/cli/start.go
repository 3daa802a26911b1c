// ABOUTME: gateway start: runs the HTTP server in the foreground or as a detached daemon

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jnun/contactcmd/internal/config"
	"github.com/jnun/contactcmd/internal/daemon"
	"github.com/jnun/contactcmd/internal/filter"
	"github.com/jnun/contactcmd/internal/gateway"
	"github.com/jnun/contactcmd/internal/policy"
	"github.com/jnun/contactcmd/internal/store"
	"github.com/jnun/contactcmd/internal/webhook"
)

var foreground bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if foreground {
			return runServer(cfg)
		}

		sup := daemon.NewSupervisor(cfg.Gateway.PidFile, cfg.Gateway.LogFile)
		childArgs := []string{"gateway", "start", "--foreground",
			"--port", strconv.Itoa(cfg.Server.Port)}
		if cfgFile != "" {
			childArgs = append(childArgs, "--config", cfgFile)
		}

		pid, err := sup.Start(childArgs)
		var already *daemon.ErrAlreadyRunning
		if errors.As(err, &already) {
			color.Yellow("gateway already running (pid %d)", already.PID)
			return nil
		}
		if err != nil {
			return err
		}

		color.Green("gateway started (pid %d)", pid)
		fmt.Printf("listening on %s, logs at %s\n", cfg.Server.Addr(), cfg.Gateway.LogFile)
		return nil
	},
}

func init() {
	startCmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
}

// runServer builds the full gateway stack and serves until interrupted.
func runServer(cfg *config.Config) error {
	cfg.SetupLogger(os.Stderr)
	logger := slog.Default().With("component", "server")

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matcher, err := filter.NewMatcher(ctx, st)
	if err != nil {
		return err
	}

	executor := newExecutor(st)
	notifier := webhook.NewNotifier(cfg.Gateway.WebhookTimeoutParsed)
	pipeline := policy.NewPipeline(st, st, st, matcher)
	approver := gateway.NewApprover(st, st, executor, notifier)
	server := gateway.NewServer(st, st, pipeline, approver, version, cfg.Gateway.MaxBodyBytes)

	sup := daemon.NewSupervisor(cfg.Gateway.PidFile, cfg.Gateway.LogFile)
	if err := sup.WritePID(os.Getpid()); err != nil {
		return err
	}
	defer sup.RemovePID()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.Addr(), "version", version)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
