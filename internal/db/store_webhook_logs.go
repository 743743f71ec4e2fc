package db

import (
	"context"
	"fmt"
	"time"
)

// WebhookLogStatus represents the processing outcome recorded for an event.
type WebhookLogStatus string

const (
	// WebhookLogStatusProcessed events completed without error.
	WebhookLogStatusProcessed WebhookLogStatus = "processed"
	// WebhookLogStatusFailed events hit an error after signature verification.
	WebhookLogStatusFailed WebhookLogStatus = "failed"
)

// WebhookLogEntry is an audit record for a received provider event.
type WebhookLogEntry struct {
	ID              int64
	EventType       string
	ProviderEventID string
	Payload         []byte
	Status          WebhookLogStatus
	ErrorMessage    *string
	CreatedAt       time.Time
}

// LogWebhookEvent records a received provider event. The provider event id is
// unique; logging a duplicate delivery of the same event is a no-op, which
// keeps processing idempotent under at-least-once delivery.
func (db *DB) LogWebhookEvent(ctx context.Context, eventType, providerEventID string, payload []byte, status WebhookLogStatus, errorMessage string) error {
	var errMsg *string
	if errorMessage != "" {
		errMsg = &errorMessage
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO webhook_logs (event_type, provider_event_id, payload, status, error_message)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_event_id) DO NOTHING
	`, eventType, providerEventID, payload, string(status), errMsg)

	if err != nil {
		return fmt.Errorf("log webhook event: %w", err)
	}
	return nil
}

// GetWebhookLog returns the log entry for a provider event id, or nil if none
// exists.
func (db *DB) GetWebhookLog(ctx context.Context, providerEventID string) (*WebhookLogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, event_type, provider_event_id, payload, status, error_message, created_at
		FROM webhook_logs
		WHERE provider_event_id = $1
	`, providerEventID)
	if err != nil {
		return nil, fmt.Errorf("get webhook log: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var entry WebhookLogEntry
	var statusStr string
	err = rows.Scan(
		&entry.ID, &entry.EventType, &entry.ProviderEventID, &entry.Payload,
		&statusStr, &entry.ErrorMessage, &entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan webhook log: %w", err)
	}
	entry.Status = WebhookLogStatus(statusStr)

	return &entry, nil
}

// CleanupWebhookLogs deletes webhook log entries older than the retention
// window and returns the number of deleted rows.
func (db *DB) CleanupWebhookLogs(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM webhook_logs
		WHERE created_at < NOW() - ($1 * INTERVAL '1 day')
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("cleanup webhook logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
