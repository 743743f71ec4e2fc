package webhooks

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subrite/subkey/internal/db"
	"github.com/subrite/subkey/internal/licensekey"
)

type fakeStore struct {
	licensesByTx map[string]*db.License
	logs         map[string]*db.WebhookLogEntry
	revoked      []string
	nextID       int64
	createErr    error
	lookupErr    error
	logErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		licensesByTx: make(map[string]*db.License),
		logs:         make(map[string]*db.WebhookLogEntry),
	}
}

func (f *fakeStore) CreateLicense(_ context.Context, key, email, transactionID string, customerID *string, metadata map[string]any) (*db.License, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, exists := f.licensesByTx[transactionID]; exists {
		return nil, fmt.Errorf("duplicate transaction %s", transactionID)
	}
	f.nextID++
	lic := &db.License{
		ID:            f.nextID,
		Key:           key,
		Email:         email,
		TransactionID: transactionID,
		CustomerID:    customerID,
		Status:        db.LicenseStatusActive,
		Metadata:      metadata,
	}
	f.licensesByTx[transactionID] = lic
	return lic, nil
}

func (f *fakeStore) GetLicenseByTransaction(_ context.Context, transactionID string) (*db.License, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.licensesByTx[transactionID], nil
}

func (f *fakeStore) RevokeLicense(_ context.Context, key string, status db.LicenseStatus) error {
	f.revoked = append(f.revoked, key)
	for _, lic := range f.licensesByTx {
		if lic.Key == key {
			lic.Status = status
		}
	}
	return nil
}

func (f *fakeStore) LogWebhookEvent(_ context.Context, eventType, providerEventID string, payload []byte, status db.WebhookLogStatus, errorMessage string) error {
	if f.logErr != nil {
		return f.logErr
	}
	if _, exists := f.logs[providerEventID]; exists {
		return nil // insert-or-ignore
	}
	var errMsg *string
	if errorMessage != "" {
		errMsg = &errorMessage
	}
	f.logs[providerEventID] = &db.WebhookLogEntry{
		EventType:       eventType,
		ProviderEventID: providerEventID,
		Payload:         payload,
		Status:          status,
		ErrorMessage:    errMsg,
	}
	return nil
}

func newTestProcessor(store Store) *Processor {
	return NewProcessor(store, licensekey.NewCodec([]byte("test-secret")), zerolog.Nop())
}

const completedEvent = `{
	"event_id": "evt_1",
	"event_type": "transaction.completed",
	"occurred_at": "2024-01-15T10:00:00Z",
	"data": {
		"id": "txn_1",
		"customer_id": "ctm_1",
		"currency_code": "USD",
		"customer": {"email": "buyer@example.com"},
		"details": {"totals": {"total": "1900"}}
	}
}`

func TestProcessCompletedIssuesLicense(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	result, err := p.Process(context.Background(), []byte(completedEvent))
	require.NoError(t, err)

	assert.Equal(t, EventTransactionCompleted, result.EventType)
	assert.False(t, result.AlreadyProcessed)
	assert.True(t, licensekey.IsWellFormed(result.LicenseKey))

	lic := store.licensesByTx["txn_1"]
	require.NotNil(t, lic)
	assert.Equal(t, "buyer@example.com", lic.Email)
	assert.Equal(t, "ctm_1", *lic.CustomerID)
	assert.Equal(t, "evt_1", lic.Metadata["paddle_event_id"])
	assert.Equal(t, "1900", lic.Metadata["amount"])
	assert.Equal(t, "USD", lic.Metadata["currency"])

	log := store.logs["evt_1"]
	require.NotNil(t, log)
	assert.Equal(t, db.WebhookLogStatusProcessed, log.Status)
}

func TestProcessCompletedIsIdempotent(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	first, err := p.Process(context.Background(), []byte(completedEvent))
	require.NoError(t, err)

	second, err := p.Process(context.Background(), []byte(completedEvent))
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.LicenseKey, second.LicenseKey, "redelivery must report the original key")
	assert.Len(t, store.licensesByTx, 1, "exactly one license row")
}

func TestProcessCompletedEmailFallback(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		email string
	}{
		{
			"checkout email when customer object missing",
			`{"id": "txn_2", "checkout": {"customer_email": "checkout@example.com"}}`,
			"checkout@example.com",
		},
		{
			"placeholder when no email anywhere",
			`{"id": "txn_3"}`,
			"unknown@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			p := newTestProcessor(store)

			body := fmt.Sprintf(`{"event_id":"evt_x","event_type":"transaction.completed","data":%s}`, tt.data)
			_, err := p.Process(context.Background(), []byte(body))
			require.NoError(t, err)

			var lic *db.License
			for _, l := range store.licensesByTx {
				lic = l
			}
			require.NotNil(t, lic)
			assert.Equal(t, tt.email, lic.Email)
		})
	}
}

func TestProcessRefundedRevokesLicense(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	_, err := p.Process(context.Background(), []byte(completedEvent))
	require.NoError(t, err)

	refund := `{"event_id":"evt_2","event_type":"transaction.refunded","data":{"id":"txn_1"}}`
	result, err := p.Process(context.Background(), []byte(refund))
	require.NoError(t, err)

	assert.Equal(t, EventTransactionRefunded, result.EventType)
	assert.Empty(t, result.LicenseKey, "refund responses carry no key material")
	assert.Equal(t, db.LicenseStatusRefunded, store.licensesByTx["txn_1"].Status)
}

func TestProcessRefundedUnknownTransactionIsTolerated(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	refund := `{"event_id":"evt_9","event_type":"transaction.refunded","data":{"id":"txn_missing"}}`
	result, err := p.Process(context.Background(), []byte(refund))
	require.NoError(t, err)

	assert.Empty(t, store.revoked)
	assert.NotNil(t, store.logs["evt_9"])
	assert.Equal(t, EventTransactionRefunded, result.EventType)
}

func TestProcessUnknownEventTypeIsLoggedAndIgnored(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store)

	body := `{"event_id":"evt_5","event_type":"subscription.created","data":{"id":"sub_1"}}`
	result, err := p.Process(context.Background(), []byte(body))
	require.NoError(t, err)

	assert.True(t, result.Ignored)
	assert.Empty(t, store.licensesByTx)
	require.NotNil(t, store.logs["evt_5"])
	assert.Equal(t, db.WebhookLogStatusProcessed, store.logs["evt_5"].Status)
}

func TestProcessRecordsFailureWhenPersistenceFails(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("storage unavailable")
	p := newTestProcessor(store)

	_, err := p.Process(context.Background(), []byte(completedEvent))
	require.Error(t, err)

	log := store.logs["evt_1"]
	require.NotNil(t, log)
	assert.Equal(t, db.WebhookLogStatusFailed, log.Status)
	require.NotNil(t, log.ErrorMessage)
	assert.Contains(t, *log.ErrorMessage, "storage unavailable")
}

func TestProcessRejectsUnparseableBody(t *testing.T) {
	p := newTestProcessor(newFakeStore())

	_, err := p.Process(context.Background(), []byte("not json"))
	require.Error(t, err)
}
