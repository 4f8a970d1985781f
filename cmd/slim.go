package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
)

type slimSource interface {
	RetrieveAllSlimDocuments(ctx context.Context, emit func([]crawler.SlimDocument) error) error
}

type slimWriter interface {
	WriteSlim(batch []crawler.SlimDocument) error
}

// newSlimCmd creates the 'slim' subcommand.
func newSlimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slim",
		Short: "Lists previously indexed documents that are still reachable",
		Long: `Reads the document IDs indexed for the configured connector/credential
pair from Postgres, probes each one, and writes the IDs that still respond.
Unreachable documents are left out so the host can delete them.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSlim: "true"},
		RunE:        runSlimCommand,
	}
}

func runSlimCommand(cmd *cobra.Command, _ []string) error {
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

	return slimInto(ctx, wc, appInstance.GetSink(), logger)
}

func slimInto(ctx context.Context, src slimSource, out slimWriter, logger *zap.Logger) error {
	total := 0
	err := src.RetrieveAllSlimDocuments(ctx, func(batch []crawler.SlimDocument) error {
		if err := out.WriteSlim(batch); err != nil {
			return err
		}
		total += len(batch)
		return nil
	})
	if err != nil {
		return fmt.Errorf("slim retrieval: %w", err)
	}
	logger.Info("Slim retrieval finished", zap.Int("confirmed", total))
	return nil
}
