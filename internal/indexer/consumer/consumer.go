// Package consumer applies re-index requests read from Kafka. A request
// either carries the new blocks inline or asks for the corpus to be
// reloaded from its configured source.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/kafka"
)

// ReindexRequest is the JSON payload of the re-index topic.
type ReindexRequest struct {
	Corpus      string           `json:"corpus"`
	Blocks      []corpus.Block   `json:"blocks,omitempty"`
	Sections    []corpus.Section `json:"sections,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
}

// Inline reports whether the request carries its own blocks.
func (r ReindexRequest) Inline() bool {
	return len(r.Blocks) > 0
}

// Reindexer is implemented by registry.Registry.
type Reindexer interface {
	Reindex(ctx context.Context, name string, c *corpus.Corpus) (uint64, error)
}

// HandleMessage returns a handler that applies each request to r. Requests
// for unknown corpora or with invalid blocks are dropped as poison; source
// load failures are returned so the message is redelivered.
func HandleMessage(r Reindexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "reindex-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ReindexRequest](value)
		if err != nil {
			return err
		}
		if req.Corpus == "" {
			req.Corpus = string(key)
		}
		var c *corpus.Corpus
		if req.Inline() {
			c = &corpus.Corpus{Blocks: req.Blocks, Sections: req.Sections}
		}

		version, err := r.Reindex(ctx, req.Corpus, c)
		if err != nil {
			if errors.Is(err, apperrors.ErrCorpusNotFound) || errors.Is(err, apperrors.ErrInvalidInput) {
				return fmt.Errorf("%w: %v", kafka.ErrPoison, err)
			}
			return fmt.Errorf("reindexing %q: %w", req.Corpus, err)
		}
		logger.Info("reindex request applied",
			"corpus", req.Corpus,
			"inline", req.Inline(),
			"blocks", len(req.Blocks),
			"version", version,
			"lag_ms", lag(req.RequestedAt),
		)
		return nil
	}
}

func lag(requested time.Time) int64 {
	if requested.IsZero() {
		return 0
	}
	return time.Since(requested).Milliseconds()
}

// ReindexConsumer drives HandleMessage from the re-index topic.
type ReindexConsumer struct {
	consumer *kafka.Consumer
}

func New(cfg config.KafkaConfig, r Reindexer) *ReindexConsumer {
	return &ReindexConsumer{
		consumer: kafka.NewConsumer(cfg, cfg.Topics.Reindex, HandleMessage(r)),
	}
}

// Run blocks until ctx is cancelled.
func (rc *ReindexConsumer) Run(ctx context.Context) error {
	return rc.consumer.Run(ctx)
}

// Publish sends a re-index request keyed by corpus name, so requests for
// the same corpus stay ordered on one partition.
func Publish(ctx context.Context, pub kafka.Publisher, req ReindexRequest) error {
	if req.Corpus == "" {
		return fmt.Errorf("%w: reindex request without corpus", apperrors.ErrInvalidInput)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	return pub.Publish(ctx, kafka.Event{Key: req.Corpus, Value: req})
}
