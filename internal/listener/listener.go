// Package listener turns order mail into exported picklists.
package listener

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"picklist/internal"
	"picklist/internal/connectors"
	"picklist/internal/logging"
	"picklist/internal/pipeline"
)

const processedKeyPrefix = "listener.processed."

type Generator interface {
	Generate(ctx context.Context, userID string, items []internal.OrderItem) internal.Picklist
}

type MetadataStore interface {
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error
}

type Options struct {
	Mailbox   string
	FetchMax  int
	Interval  time.Duration
	UserID    string
	OutputDir string
}

type Service struct {
	connector connectors.MailConnector
	generator Generator
	meta      MetadataStore
	archive   *connectors.MailArchive
	opts      Options
	logger    *zap.Logger
}

type CycleResult struct {
	Fetched   int
	Skipped   int
	Exported  int
	NotOrders int
}

func NewService(connector connectors.MailConnector, generator Generator, meta MetadataStore, opts Options, logger *zap.Logger) *Service {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &Service{
		connector: connector,
		generator: generator,
		meta:      meta,
		archive:   connectors.NewMailArchive(filepath.Join(opts.OutputDir, "listener", "raw")),
		opts:      opts,
		logger:    logging.OrNop(logger),
	}
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried on
// the next tick.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		res, err := s.RunCycle(ctx)
		if err != nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		} else {
			s.logger.Info("listener cycle done",
				zap.Int("fetched", res.Fetched),
				zap.Int("exported", res.Exported),
				zap.Int("skipped", res.Skipped),
				zap.Int("notOrders", res.NotOrders),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	messages, err := s.connector.FetchUnseen(ctx, s.opts.Mailbox, s.opts.FetchMax)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch mail: %w", err)
	}

	res := CycleResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := processedKeyPrefix + msg.MessageID
		if _, done, err := s.meta.GetMetadata(ctx, key); err != nil {
			return res, err
		} else if done {
			res.Skipped++
			continue
		}

		outcome, err := s.handle(ctx, msg)
		if err != nil {
			s.logger.Error("order mail failed", zap.String("messageId", msg.MessageID), zap.Error(err))
			continue
		}
		if outcome == "" {
			res.NotOrders++
		} else {
			res.Exported++
		}
		if err := s.meta.SetMetadata(ctx, key, orDefault(outcome, "not_order")); err != nil {
			return res, err
		}
	}
	return res, nil
}

// handle returns the export path, or "" when the message is not an order.
func (s *Service) handle(ctx context.Context, msg connectors.Message) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return "", fmt.Errorf("parse mail: %w", err)
	}
	names := make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		names = append(names, att.FileName)
	}

	detect := pipeline.DetectOrder(msg.Subject, env.Text, env.HTML, names)
	if !detect.IsOrder {
		s.logger.Debug("mail is not an order", zap.String("messageId", msg.MessageID), zap.String("reason", detect.Reason))
		return "", nil
	}

	items, err := pipeline.ExtractItems(internal.SourceEmail, msg.Raw)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}

	if _, err := s.archive.Store(msg); err != nil {
		s.logger.Warn("mail archive failed", zap.String("messageId", msg.MessageID), zap.Error(err))
	}

	pl := s.generator.Generate(ctx, s.opts.UserID, items)
	out := filepath.Join(s.opts.OutputDir, "listener", fmt.Sprintf("%s_%s.xlsx", pl.BatchID, sanitizeMessageID(msg.MessageID)))
	if err := pipeline.ExportXLSX(pl, out); err != nil {
		return "", err
	}
	s.logger.Info("order mail exported",
		zap.String("messageId", msg.MessageID),
		zap.String("from", msg.From),
		zap.Int("items", len(items)),
		zap.String("path", out),
	)
	return out, nil
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "", ">", "", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
