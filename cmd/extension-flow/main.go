// Command extension-flow opens a browser profile with a captcha solving
// extension, lets it pass the challenge and prints the page.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CbIPOKGIT/turnstile-navigator/internal/config"
	"github.com/CbIPOKGIT/turnstile-navigator/internal/logging"
	"github.com/CbIPOKGIT/turnstile-navigator/orchestrator"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("extension flow failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateExtension(); err != nil {
		return err
	}

	orchCfg, err := cfg.OrchestratorConfig()
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchCfg, nil, orchestrator.WithLogger(logger.Named("orchestrator")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := orch.RunExtensionFlow(ctx, cfg.Crawl.URL, cfg.Extension.ProfileDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("close browser", zap.Error(err))
		}
	}()

	logger.Info("page ready",
		zap.String("session", session.SessionID),
		zap.Int("sessions", len(session.Navigator.Sessions())),
	)

	fmt.Println(session.Result.Text())
	return nil
}
