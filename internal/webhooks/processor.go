package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/licensekey"
)

// Provider event types with modeled side effects. Anything else is logged and
// acknowledged without action so new provider event types don't break intake.
const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionRefunded  = "transaction.refunded"
)

// fallbackEmail is recorded when a completed transaction carries no usable
// customer email anywhere in the payload.
const fallbackEmail = "unknown@example.com"

// Store defines the persistence operations the processor needs.
type Store interface {
	CreateLicense(ctx context.Context, key, email, transactionID string, customerID *string, metadata map[string]any) (*db.License, error)
	GetLicenseByTransaction(ctx context.Context, transactionID string) (*db.License, error)
	RevokeLicense(ctx context.Context, key string, status db.LicenseStatus) error
	LogWebhookEvent(ctx context.Context, eventType, providerEventID string, payload []byte, status db.WebhookLogStatus, errorMessage string) error
}

// Event is the subset of the provider payload the processor acts on.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt string    `json:"occurred_at"`
	Data       EventData `json:"data"`
}

// EventData carries the transaction details of an event.
type EventData struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	CurrencyCode string `json:"currency_code"`
	Customer     *struct {
		Email string `json:"email"`
	} `json:"customer"`
	Checkout *struct {
		CustomerEmail string `json:"customer_email"`
	} `json:"checkout"`
	Details *struct {
		Totals *struct {
			Total string `json:"total"`
		} `json:"totals"`
	} `json:"details"`
}

// Result describes the outcome of processing a verified event.
type Result struct {
	EventType        string
	LicenseKey       string
	AlreadyProcessed bool
	Ignored          bool
}

// Processor drives the license ledger from verified provider events.
// Idempotency comes from the transaction-id pre-check and the unique
// constraint on the provider event id, not from locks: redelivering any event
// is a no-op.
type Processor struct {
	store  Store
	codec  *licensekey.Codec
	logger zerolog.Logger
	now    func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, codec *licensekey.Codec, logger zerolog.Logger) *Processor {
	return &Processor{
		store:  store,
		codec:  codec,
		logger: logger.With().Str("component", "webhook_processor").Logger(),
		now:    time.Now,
	}
}

// Process handles a verified raw event body. The caller must have checked the
// delivery signature already. A returned error means persistence failed after
// verification; the caller should answer with a server error so the provider
// redelivers.
func (p *Processor) Process(ctx context.Context, rawBody []byte) (*Result, error) {
	var event Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}

	p.logger.Info().
		Str("event_type", event.EventType).
		Str("event_id", event.EventID).
		Msg("webhook event received")

	switch event.EventType {
	case EventTransactionCompleted:
		return p.handleCompleted(ctx, &event, rawBody)
	case EventTransactionRefunded:
		return p.handleRefunded(ctx, &event, rawBody)
	default:
		if err := p.store.LogWebhookEvent(ctx, event.EventType, event.EventID, rawBody, db.WebhookLogStatusProcessed, ""); err != nil {
			return nil, p.recordFailure(ctx, &event, rawBody, err)
		}
		return &Result{EventType: event.EventType, Ignored: true}, nil
	}
}

func (p *Processor) handleCompleted(ctx context.Context, event *Event, rawBody []byte) (*Result, error) {
	// Retried deliveries must not issue a second license.
	existing, err := p.store.GetLicenseByTransaction(ctx, event.Data.ID)
	if err != nil {
		return nil, p.recordFailure(ctx, event, rawBody, err)
	}
	if existing != nil {
		p.logger.Info().
			Str("transaction_id", event.Data.ID).
			Msg("transaction already processed")
		if err := p.store.LogWebhookEvent(ctx, event.EventType, event.EventID, rawBody, db.WebhookLogStatusProcessed, ""); err != nil {
			return nil, p.recordFailure(ctx, event, rawBody, err)
		}
		return &Result{
			EventType:        event.EventType,
			LicenseKey:       existing.Key,
			AlreadyProcessed: true,
		}, nil
	}

	email := customerEmail(&event.Data)
	key := p.codec.Generate(event.Data.ID, email, p.now().UnixMilli())

	var customerID *string
	if event.Data.CustomerID != "" {
		customerID = &event.Data.CustomerID
	}

	metadata := map[string]any{
		"paddle_event_id": event.EventID,
		"currency":        event.Data.CurrencyCode,
		"occurred_at":     event.OccurredAt,
	}
	if event.Data.Details != nil && event.Data.Details.Totals != nil {
		metadata["amount"] = event.Data.Details.Totals.Total
	}

	lic, err := p.store.CreateLicense(ctx, key, email, event.Data.ID, customerID, metadata)
	if err != nil {
		return nil, p.recordFailure(ctx, event, rawBody, err)
	}

	if err := p.store.LogWebhookEvent(ctx, event.EventType, event.EventID, rawBody, db.WebhookLogStatusProcessed, ""); err != nil {
		return nil, p.recordFailure(ctx, event, rawBody, err)
	}

	p.logger.Info().
		Str("license_key", lic.Key).
		Str("email", email).
		Str("transaction_id", event.Data.ID).
		Msg("license issued")

	return &Result{EventType: event.EventType, LicenseKey: lic.Key}, nil
}

func (p *Processor) handleRefunded(ctx context.Context, event *Event, rawBody []byte) (*Result, error) {
	// Refunds for unknown transactions are tolerated; only log the event.
	lic, err := p.store.GetLicenseByTransaction(ctx, event.Data.ID)
	if err != nil {
		return nil, p.recordFailure(ctx, event, rawBody, err)
	}

	if lic != nil {
		if err := p.store.RevokeLicense(ctx, lic.Key, db.LicenseStatusRefunded); err != nil {
			return nil, p.recordFailure(ctx, event, rawBody, err)
		}
		p.logger.Info().
			Str("license_key", lic.Key).
			Str("transaction_id", event.Data.ID).
			Msg("license revoked after refund")
	}

	if err := p.store.LogWebhookEvent(ctx, event.EventType, event.EventID, rawBody, db.WebhookLogStatusProcessed, ""); err != nil {
		return nil, p.recordFailure(ctx, event, rawBody, err)
	}

	return &Result{EventType: event.EventType}, nil
}

// recordFailure logs a failed processing attempt and returns the original
// error. Logging failures are reported but never mask the processing error.
func (p *Processor) recordFailure(ctx context.Context, event *Event, rawBody []byte, cause error) error {
	if err := p.store.LogWebhookEvent(ctx, event.EventType, event.EventID, rawBody, db.WebhookLogStatusFailed, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.EventID).Msg("failed to record webhook failure")
	}
	return cause
}

// customerEmail extracts the buyer email, falling back through the customer
// object, the checkout object, and finally a placeholder.
func customerEmail(data *EventData) string {
	if data.Customer != nil && data.Customer.Email != "" {
		return data.Customer.Email
	}
	if data.Checkout != nil && data.Checkout.CustomerEmail != "" {
		return data.Checkout.CustomerEmail
	}
	return fallbackEmail
}
