/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pipeline is the single consumer of the transaction queue: it maps
// each transaction to the configured backend payload shape, delivers it,
// and records the outcome in the local cache.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/api"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// Sender delivers one transaction to the backend in the configured payload
// shape.
type Sender interface {
	Send(ctx context.Context, tx *models.Transaction) error
}

// Store is the subset of the cache the pipeline writes. The pipeline is
// the only component that writes the cache at all.
type Store interface {
	UpsertTransaction(ctx context.Context, rec *models.CachedTransaction) error
	IsProcessed(ctx context.Context, systemID, transactionID string) (bool, error)
	AppendLog(ctx context.Context, entry *models.SyncLogEntry) error
	UpdateSystemSync(ctx context.Context, systemID string, at time.Time) error
}

// Pipeline drains the queue one transaction at a time. Delivery failures
// are recorded but not retried here: the cache is an audit trail, not a
// retry queue.
type Pipeline struct {
	sender Sender
	cache  Store
	logger logger.Logger
	done   chan struct{}
}

// New builds the pipeline. The sender decides invoice-mode or batch-mode
// delivery; see NewSender.
func New(sender Sender, cacheStore Store, log logger.Logger) *Pipeline {
	return &Pipeline{
		sender: sender,
		cache:  cacheStore,
		logger: log.WithComponent("pipeline"),
		done:   make(chan struct{}),
	}
}

// NewSender picks the payload shape for the configured backend mode.
func NewSender(cfg *models.ConnectorConfig, session *api.SessionManager, log logger.Logger) Sender {
	if cfg.BackendMode == models.ModeBatch {
		return &batchSender{client: api.NewBatchClient(cfg, log)}
	}

	return &invoiceSender{
		client:      api.NewInvoiceClient(session, log),
		autoSubmit:  cfg.AutoSubmit,
		documentDir: cfg.DocumentDir,
		logger:      log.WithComponent("pipeline.invoice"),
	}
}

// Run consumes the queue until it is closed or the context is cancelled.
// The item in flight is always finished before Run returns.
func (p *Pipeline) Run(ctx context.Context, queue <-chan models.QueuedTransaction) {
	defer close(p.done)

	p.logger.Info().Msg("Sync pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Sync pipeline stopping")
			return
		case queued, ok := <-queue:
			if !ok {
				p.logger.Info().Msg("Queue closed, sync pipeline exiting")
				return
			}

			p.process(ctx, &queued)
		}
	}
}

// Done is closed once Run has fully exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) process(ctx context.Context, queued *models.QueuedTransaction) {
	tx := &queued.Transaction

	// Dedupe before transmission: a transaction already delivered for this
	// system is not sent again.
	processed, err := p.cache.IsProcessed(ctx, queued.SystemID, tx.ID)
	if err != nil {
		p.logger.Warn().Err(err).Str("transaction", tx.ID).Msg("Cache lookup failed, sending anyway")
	} else if processed {
		p.logger.Debug().
			Str("system", queued.SystemName).
			Str("transaction", tx.ID).
			Msg("Transaction already delivered, skipping")

		return
	}

	sendErr := p.sender.Send(ctx, tx)

	p.record(ctx, queued, sendErr)

	if sendErr != nil {
		if errors.Is(sendErr, api.ErrAuthFailed) {
			// Nothing else can be delivered without credentials; surface
			// loudly and keep draining so shutdown stays responsive.
			p.logger.Error().Err(sendErr).Msg("Authentication exhausted, deliveries will keep failing")
		} else {
			p.logger.Warn().Err(sendErr).
				Str("system", queued.SystemName).
				Str("transaction", tx.ID).
				Msg("Delivery failed")
		}

		return
	}

	p.logger.Info().
		Str("system", queued.SystemName).
		Str("transaction", tx.ID).
		Msg("Transaction delivered")
}

// record writes the idempotency row and the audit entry. Cache write
// failures only cost us the audit trail; the backend outcome stands.
func (p *Pipeline) record(ctx context.Context, queued *models.QueuedTransaction, sendErr error) {
	payload, err := json.Marshal(queued.Transaction)
	if err != nil {
		payload = nil
	}

	rec := &models.CachedTransaction{
		SystemID:      queued.SystemID,
		TransactionID: queued.Transaction.ID,
		Payload:       payload,
		Processed:     sendErr == nil,
	}

	if err := p.cache.UpsertTransaction(ctx, rec); err != nil {
		p.logger.Warn().Err(err).Str("transaction", rec.TransactionID).Msg("Failed to cache transaction")
	}

	entry := &models.SyncLogEntry{
		SystemID:      queued.SystemID,
		TransactionID: queued.Transaction.ID,
		Status:        models.SyncSuccess,
	}

	if sendErr != nil {
		entry.Status = models.SyncFailed
		entry.Message = sendErr.Error()
	}

	if err := p.cache.AppendLog(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Str("transaction", rec.TransactionID).Msg("Failed to append sync log")
	}

	if sendErr == nil {
		if err := p.cache.UpdateSystemSync(ctx, queued.SystemID, time.Now()); err != nil {
			p.logger.Warn().Err(err).Str("system", queued.SystemID).Msg("Failed to update system sync time")
		}
	}
}

// invoiceSender drives the legacy two-step shape: create the invoice, then
// optionally submit it and pull the rendered documents.
type invoiceSender struct {
	client      *api.InvoiceClient
	autoSubmit  bool
	documentDir string
	logger      logger.Logger
}

func (s *invoiceSender) Send(ctx context.Context, tx *models.Transaction) error {
	invoiceID, err := s.client.CreateInvoice(ctx, api.InvoiceForTransaction(tx))
	if err != nil {
		return err
	}

	if s.autoSubmit {
		if err := s.client.SubmitInvoice(ctx, invoiceID); err != nil {
			return fmt.Errorf("invoice %d created but submit failed: %w", invoiceID, err)
		}
	}

	// Document downloads are best effort; the invoice is already accepted.
	if s.documentDir != "" {
		pdfPath := filepath.Join(s.documentDir, fmt.Sprintf("invoice_%d.pdf", invoiceID))
		if err := s.client.DownloadPDF(ctx, invoiceID, pdfPath); err != nil {
			s.logger.Warn().Err(err).Int64("invoice_id", invoiceID).Msg("PDF download failed")
		}

		xmlPath := filepath.Join(s.documentDir, fmt.Sprintf("invoice_%d.xml", invoiceID))
		if err := s.client.DownloadXML(ctx, invoiceID, xmlPath); err != nil {
			s.logger.Warn().Err(err).Int64("invoice_id", invoiceID).Msg("XML download failed")
		}
	}

	return nil
}

// batchSender posts each transaction through the batch endpoint.
type batchSender struct {
	client *api.BatchClient
}

func (s *batchSender) Send(ctx context.Context, tx *models.Transaction) error {
	result, err := s.client.SendTransactions(ctx, []models.Transaction{*tx})
	if err != nil {
		return err
	}

	if result.Errors > 0 {
		return fmt.Errorf("backend rejected transaction: %v", result.ErrorDetails)
	}

	return nil
}
