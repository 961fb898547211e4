package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"

	"insta-analyzer/config"
	"insta-analyzer/fetcher"
	"insta-analyzer/services"
	"insta-analyzer/storage"
	"insta-analyzer/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetDebug(cfg.Debug)

	logger.Info("=== Instagram Engagement Analyzer starting ===")
	logger.Info("Config: posts: %d | metric: %s | concurrency: %d | retries: %d | timeout: %v",
		cfg.PostLimit, cfg.InsightMetric, cfg.MaxConcurrency, cfg.MaxRetries, cfg.HTTPTimeout())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	prompter := config.NewPrompter(os.Stdin, os.Stdout)
	prompter.FillCredentials(cfg)

	analyzer, err := services.NewAnalyzer(cfg, logger, fetcher.New(cfg, logger))
	if err != nil {
		logger.Error("Failed to set up analyzer: %v", err)
		os.Exit(1)
	}
	analyzer.Begin()

	var out storage.TableWriter
	if cfg.OutputFormat == "csv" {
		out = storage.NewCSVWriter(os.Stdout)
	} else {
		out = storage.NewTerminalWriter(os.Stdout)
	}
	defer out.Close()

	insights := services.NewInsightService(logger)

	// A configured username means a single non-interactive run.
	if cfg.TargetUsername != "" {
		if !analyse(ctx, analyzer, insights, out, cfg, logger, cfg.TargetUsername) {
			os.Exit(1)
		}
		return
	}

	for ctx.Err() == nil {
		// Credentials left blank earlier are asked for again on every run.
		prompter.FillCredentials(cfg)
		username, ok := prompter.Ask("Instagram username to analyse (empty to quit)")
		if !ok || username == "" {
			break
		}
		analyse(ctx, analyzer, insights, out, cfg, logger, username)
	}
}

// analyse runs one analysis and renders it. It reports whether the run succeeded.
func analyse(ctx context.Context, analyzer *services.Analyzer, insights *services.InsightService,
	out storage.TableWriter, cfg *config.Config, logger *utils.Logger, username string) bool {

	res, err := analyzer.Run(ctx, services.Request{Username: username})
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, services.UserMessage(logger, err))
		return false
	}

	if err := out.WriteTable(fmt.Sprintf("Likes and comments of @%s", res.Username), res.Engagement); err != nil {
		logger.Error("Render failed: %v", err)
		return false
	}
	if cfg.OutputFormat != "csv" {
		insights.Print(os.Stdout, res.Report)
	}
	if err := out.WriteTable(fmt.Sprintf("Likes and %s of @%s", cfg.InsightMetric, res.Username), res.Reach); err != nil {
		logger.Error("Render failed: %v", err)
		return false
	}
	return true
}
