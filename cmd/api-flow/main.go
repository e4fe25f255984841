// Command api-flow passes a Cloudflare Turnstile challenge with a token from
// a solver API and prints the page behind it.
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
		logger.Error("api flow failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	s, err := cfg.NewSolver(logger.Named("solver"))
	if err != nil {
		return err
	}

	orchCfg, err := cfg.OrchestratorConfig()
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchCfg, s, orchestrator.WithLogger(logger.Named("orchestrator")))
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Warn("close browser", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.RunAPIFlow(ctx, cfg.Challenge, cfg.Crawl.URL)
	if err != nil {
		return err
	}

	fmt.Println(result.Text())
	return nil
}
