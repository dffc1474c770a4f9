// Command attestation-server runs the remote attestation server: the
// challenge/verify/submit endpoints, the session-authenticated account
// API, and the alert and maintenance background loops. It follows the
// teacher's cmd/fdo_server layout — explicit flag parsing, an
// http.Server built by hand, and a context cancelled on SIGINT/SIGTERM
// for graceful shutdown — generalized from one onboarding server to
// this domain's three long-running components (HTTP, alert dispatcher,
// maintenance loop).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openattest/attestation-server/internal/alert"
	"github.com/openattest/attestation-server/internal/catalogue"
	"github.com/openattest/attestation-server/internal/challenge"
	"github.com/openattest/attestation-server/internal/config"
	"github.com/openattest/attestation-server/internal/ingress"
	"github.com/openattest/attestation-server/internal/logging"
	"github.com/openattest/attestation-server/internal/maintenance"
	"github.com/openattest/attestation-server/internal/pinning"
	"github.com/openattest/attestation-server/internal/samples"
	"github.com/openattest/attestation-server/internal/verifier"
)

func main() {
	flagSet := flag.NewFlagSet("attestation-server", flag.ExitOnError)
	envPrefix := flagSet.String("env-prefix", "ATTEST", "environment variable prefix for configuration")
	flagSet.Parse(os.Args[1:])

	cfg, err := config.Load(*envPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading configuration:", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := pinning.Open(ctx, cfg.MainDBPath)
	if err != nil {
		return fmt.Errorf("opening main database: %w", err)
	}
	defer store.Close()

	sampleStore, err := samples.Open(ctx, cfg.SampleDBPath)
	if err != nil {
		return fmt.Errorf("opening sample database: %w", err)
	}
	defer sampleStore.Close()

	var roots []verifier.TrustRoot
	if cfg.TrustRootPath != "" {
		roots, err = verifier.LoadTrustRoots(cfg.TrustRootPath)
		if err != nil {
			return fmt.Errorf("loading trust roots: %w", err)
		}
	} else {
		logger.Warn("no TRUST_ROOT_PATH configured; the verifier will reject every chain")
	}

	challenges := challenge.New()
	v := verifier.New(roots, challenges, catalogue.Default)

	server := ingress.New(v, challenges, store, sampleStore, cfg.CanonicalOrigin)
	if cfg.MaxBodySize > 0 {
		server.AdminBodyLimit = cfg.MaxBodySize
	}

	var mailer alert.Mailer
	if cfg.SMTPAddr != "" {
		mailer = alert.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}

	var bg []func(context.Context)
	if mailer != nil {
		dispatcher := alert.New(store, mailer)
		bg = append(bg, dispatcher.Run)
	}
	maint := maintenance.New(store, cfg.BackupDir)
	bg = append(bg, maint.Run)

	for _, loop := range bg {
		go loop(ctx)
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
