package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/web-connector/internal/crawler"
	"github.com/JakeFAU/web-connector/internal/frontier"
	"github.com/JakeFAU/web-connector/internal/metrics"
)

// RetrieveAllSlimDocuments probes every document previously indexed for the
// configured connector/credential pair and emits the still-reachable IDs in
// batches of 1000. Unreachable IDs are dropped without error; rate-limited
// ones are retried after their delay.
func (c *WebConnector) RetrieveAllSlimDocuments(ctx context.Context, emit func([]crawler.SlimDocument) error) error {
	if c.cfg.ConnectorID == nil || c.cfg.CredentialID == nil {
		return crawler.ErrMissingPairIDs
	}
	if c.deps.DocumentIDs == nil {
		return errors.New("slim documents require a document id store")
	}
	ids, err := c.deps.DocumentIDs.ListDocumentIDs(ctx, *c.cfg.ConnectorID, *c.cfg.CredentialID)
	if err != nil {
		return fmt.Errorf("list document ids: %w", err)
	}

	f := frontier.New(c.deps.Clock)
	original := make(map[string]string, len(ids))
	for _, id := range ids {
		if !f.Add(id) {
			continue
		}
		key, err := crawler.NormalizeURL(id, false)
		if err != nil {
			continue
		}
		original[key] = id
	}

	logger := c.logger.With(
		zap.Int64("connector_id", *c.cfg.ConnectorID),
		zap.Int64("credential_id", *c.cfg.CredentialID),
	)
	batch := make([]crawler.SlimDocument, 0, slimBatchSize)
	for f.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("slim retrieval cancelled: %w", err)
		}
		if err := waitEligible(ctx, c.deps.Clock, f); err != nil {
			return fmt.Errorf("slim retrieval cancelled: %w", err)
		}
		current, ok := f.Next()
		if !ok {
			continue
		}
		if err := c.deps.Prober.Probe(ctx, current); err != nil {
			var probeErr *crawler.ProbeError
			if errors.As(err, &probeErr) && probeErr.Kind == crawler.ProbeRateLimited {
				f.HandleRateLimit(current, probeErr.RetryAfter)
				metrics.ObserveRateLimitDeferral(current)
			}
			logger.Warn("Failed to fetch", zap.String("url", current), zap.Error(err))
			metrics.ObservePage(current, metrics.OutcomeProbeFailed, 0)
			continue
		}
		metrics.ObservePage(current, metrics.OutcomeConfirmed, 0)

		id, known := original[current]
		if !known {
			id = current
		}
		batch = append(batch, crawler.SlimDocument{ID: id})
		if len(batch) >= slimBatchSize {
			if err := emitSlim(emit, batch); err != nil {
				return err
			}
			batch = make([]crawler.SlimDocument, 0, slimBatchSize)
		}
	}
	if len(batch) > 0 {
		return emitSlim(emit, batch)
	}
	return nil
}

func emitSlim(emit func([]crawler.SlimDocument) error, batch []crawler.SlimDocument) error {
	metrics.ObserveBatch("slim", len(batch))
	if err := emit(batch); err != nil {
		return fmt.Errorf("emit slim batch: %w", err)
	}
	return nil
}
