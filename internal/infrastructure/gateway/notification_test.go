package gateway

import (
	"testing"

	"github.com/LavaJover/shvark-settlement-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	body := []byte(`{"id":"WH-1"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifySignature("whsec", body, sig))
	assert.False(t, VerifySignature("other", body, sig))
	assert.False(t, VerifySignature("whsec", []byte(`{"id":"WH-2"}`), sig))
	assert.False(t, VerifySignature("whsec", body, "not-hex"))
	assert.False(t, VerifySignature("", body, sig))
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantType   domain.TransactionType
		wantID     string
		wantStatus domain.TransactionStatus
	}{
		{
			name:       "order approved",
			body:       `{"id":"WH-1","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-1","status":"APPROVED"}}`,
			wantType:   domain.TransactionCapture,
			wantID:     "ORDER-1",
			wantStatus: domain.TxStatusPending,
		},
		{
			name:       "capture completed",
			body:       `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","status":"COMPLETED","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`,
			wantType:   domain.TransactionCapture,
			wantID:     "ORDER-1",
			wantStatus: domain.TxStatusCompleted,
		},
		{
			name:       "capture denied",
			body:       `{"id":"WH-3","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-1","status":"DECLINED","supplementary_data":{"related_ids":{"order_id":"ORDER-2"}}}}`,
			wantType:   domain.TransactionCapture,
			wantID:     "ORDER-2",
			wantStatus: domain.TxStatusFailed,
		},
		{
			name:       "payout batch success",
			body:       `{"id":"WH-4","event_type":"PAYMENT.PAYOUTSBATCH.SUCCESS","resource":{"batch_header":{"payout_batch_id":"BATCH-1","batch_status":"SUCCESS"}}}`,
			wantType:   domain.TransactionPayout,
			wantID:     "BATCH-1",
			wantStatus: domain.TxStatusSuccess,
		},
		{
			name: "unrelated event",
			body: `{"id":"WH-5","event_type":"CUSTOMER.DISPUTE.CREATED","resource":{"id":"PP-D-1"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, n.Type)
			assert.Equal(t, tt.wantID, n.ExternalID)
			assert.Equal(t, tt.wantStatus, n.Status)
		})
	}
}

func TestParseNotificationRejectsMalformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"id":"WH-1"}`,
		`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1"}}`,
	} {
		_, err := ParseNotification([]byte(body))
		assert.ErrorIs(t, err, domain.ErrInvalidNotification, body)
	}
}
