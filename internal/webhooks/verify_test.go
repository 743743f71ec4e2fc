package webhooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier([]byte(secret))
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{"event_id":"evt_1","event_type":"transaction.completed"}`)

	header := Sign([]byte("hook-secret"), body, now)
	v := newTestVerifier("hook-secret", now)

	require.NoError(t, v.Verify(header, body))
}

func TestVerifyAcceptsDriftWithinTolerance(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)

	tests := []struct {
		name   string
		signed time.Time
	}{
		{"4 minutes old", now.Add(-4 * time.Minute)},
		{"4 minutes in the future", now.Add(4 * time.Minute)},
		{"exactly at tolerance", now.Add(-DefaultTolerance)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := Sign([]byte("s"), body, tt.signed)
			assert.NoError(t, newTestVerifier("s", now).Verify(header, body))
		})
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)

	tests := []struct {
		name   string
		signed time.Time
	}{
		{"6 minutes old", now.Add(-6 * time.Minute)},
		{"6 minutes in the future", now.Add(6 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := Sign([]byte("s"), body, tt.signed)
			assert.ErrorIs(t, newTestVerifier("s", now).Verify(header, body), ErrStaleTimestamp)
		})
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	body := []byte(`{}`)

	header := Sign([]byte("secret-a"), body, now)
	assert.ErrorIs(t, newTestVerifier("secret-b", now).Verify(header, body), ErrSignatureMismatch)
}

func TestVerifyRejectsModifiedBody(t *testing.T) {
	now := time.Unix(1700000000, 0)

	header := Sign([]byte("s"), []byte(`{"a":1}`), now)
	assert.ErrorIs(t, newTestVerifier("s", now).Verify(header, []byte(`{"a":2}`)), ErrSignatureMismatch)
}

func TestVerifyRejectsMalformedHeader(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := newTestVerifier("s", now)

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"missing signature", "ts=1700000000"},
		{"missing timestamp", "h1=abcdef"},
		{"non-numeric timestamp", "ts=yesterday;h1=abcdef"},
		{"wrong separators", "ts=1700000000,h1=abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, v.Verify(tt.header, []byte(`{}`)), ErrMalformedSignature)
		})
	}
}
