package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/api"
	"github.com/JakeFAU/web-connector/internal/crawler"
)

type documentSource interface {
	LoadFromState(ctx context.Context, emit func([]crawler.Document) error) error
}

type documentWriter interface {
	WriteDocuments(batch []crawler.Document) error
}

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured site and writes document batches",
		Long: `Resolves the seed list for the configured mode, crawls it, and writes
every emitted batch of documents to the output as JSON lines. Fails when the
crawl produced no documents at all.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := appInstance.GetLogger()

	wc, err := appInstance.NewConnector(ctx)
	if err != nil {
		return err
	}
	stop := startStatusServer(ctx, appInstance.GetConfig().Metrics.Addr, wc.Stats(), logger)
	defer stop()

	return crawlInto(ctx, wc, appInstance.GetSink(), logger)
}

func crawlInto(ctx context.Context, src documentSource, out documentWriter, logger *zap.Logger) error {
	total := 0
	err := src.LoadFromState(ctx, func(batch []crawler.Document) error {
		if err := out.WriteDocuments(batch); err != nil {
			return err
		}
		total += len(batch)
		logger.Info("Batch written", zap.Int("size", len(batch)), zap.Int("total", total))
		return nil
	})
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	logger.Info("Crawl finished", zap.Int("documents", total))
	return nil
}

// startStatusServer serves the operator API on addr until the returned stop
// func is called. An empty addr disables it.
func startStatusServer(ctx context.Context, addr string, status api.StatusSource, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := api.NewServer(status, logger.Named("api")).Run(ctx, addr); err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
