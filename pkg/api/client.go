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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

// InvoiceItem is one line on an invoice creation request.
type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// InvoicePayload is the legacy invoice creation shape. Created invoices
// need an explicit submit call to reach the tax authority.
type InvoicePayload struct {
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	InvoiceDate   string        `json:"invoice_date"`
	Currency      string        `json:"currency"`
	Items         []InvoiceItem `json:"items"`
	Subtotal      float64       `json:"subtotal"`
	Tax           float64       `json:"tax"`
	Total         float64       `json:"total"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	SourceSystem  string        `json:"source_system,omitempty"`
	ExternalID    string        `json:"external_id,omitempty"`
}

// InvoiceForTransaction maps a canonical transaction onto the invoice
// request shape.
func InvoiceForTransaction(tx *models.Transaction) InvoicePayload {
	items := make([]InvoiceItem, 0, len(tx.Items))
	for _, item := range tx.Items {
		items = append(items, InvoiceItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
		})
	}

	return InvoicePayload{
		CustomerName:  tx.Customer.Name,
		CustomerEmail: tx.Customer.Email,
		CustomerPhone: tx.Customer.Phone,
		InvoiceDate:   tx.Timestamp.Format("2006-01-02"),
		Currency:      tx.Currency,
		Items:         items,
		Subtotal:      tx.Subtotal,
		Tax:           tx.Tax,
		Total:         tx.Total,
		PaymentMethod: tx.PaymentMethod,
		Notes:         tx.Notes,
		SourceSystem:  tx.SourceSystem,
		ExternalID:    tx.ID,
	}
}

// InvoiceClient drives the legacy invoice endpoints through an
// authenticated session.
type InvoiceClient struct {
	session *SessionManager
	logger  logger.Logger
}

func NewInvoiceClient(session *SessionManager, log logger.Logger) *InvoiceClient {
	return &InvoiceClient{
		session: session,
		logger:  log.WithComponent("api.invoice"),
	}
}

// CreateInvoice posts a new invoice and returns its backend identifier.
func (c *InvoiceClient) CreateInvoice(ctx context.Context, payload InvoicePayload) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	resp, err := c.session.Do(ctx, http.MethodPost, "/api/invoices", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("create invoice returned status %d", resp.StatusCode)
	}

	var invoice struct {
		ID int64 `json:"id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return 0, fmt.Errorf("invalid create response: %w", err)
	}

	if invoice.ID == 0 {
		return 0, fmt.Errorf("create response missing invoice id")
	}

	c.logger.Info().Int64("invoice_id", invoice.ID).Str("customer", payload.CustomerName).Msg("Invoice created")

	return invoice.ID, nil
}

// SubmitInvoice pushes a created invoice through to the tax authority.
func (c *InvoiceClient) SubmitInvoice(ctx context.Context, invoiceID int64) error {
	resp, err := c.session.Do(ctx, http.MethodPost, fmt.Sprintf("/api/invoices/%d/submit", invoiceID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit invoice %d returned status %d", invoiceID, resp.StatusCode)
	}

	c.logger.Info().Int64("invoice_id", invoiceID).Msg("Invoice submitted")

	return nil
}

// InvoiceStatus queries the backend for an invoice's processing state.
func (c *InvoiceClient) InvoiceStatus(ctx context.Context, invoiceID int64) (string, error) {
	resp, err := c.session.Do(ctx, http.MethodGet, fmt.Sprintf("/api/invoices/status/%d", invoiceID), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("invoice %d status returned %d", invoiceID, resp.StatusCode)
	}

	var status struct {
		Status string `json:"status"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("invalid status response: %w", err)
	}

	return status.Status, nil
}

// DownloadPDF fetches the rendered invoice PDF into outputPath.
func (c *InvoiceClient) DownloadPDF(ctx context.Context, invoiceID int64, outputPath string) error {
	return c.download(ctx, fmt.Sprintf("/api/invoices/%d/pdf", invoiceID), outputPath)
}

// DownloadXML fetches the invoice's UBL XML document into outputPath.
func (c *InvoiceClient) DownloadXML(ctx context.Context, invoiceID int64, outputPath string) error {
	return c.download(ctx, fmt.Sprintf("/api/invoices/%d/xml", invoiceID), outputPath)
}

func (c *InvoiceClient) download(ctx context.Context, path, outputPath string) error {
	resp, err := c.session.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s returned status %d", path, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}

	c.logger.Info().Str("path", outputPath).Msg("Invoice document downloaded")

	return nil
}

// VendorProfile returns the authenticated vendor's profile fields.
func (c *InvoiceClient) VendorProfile(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.session.Do(ctx, http.MethodGet, profilePath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor profile returned status %d", resp.StatusCode)
	}

	var profile map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("invalid profile response: %w", err)
	}

	return profile, nil
}
