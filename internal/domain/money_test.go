package domain

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", code)

	_, err = NormalizeCurrency("ZZZ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NormalizeCurrency("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  bool
	}{
		{"whole dollars", "25", "USD", false},
		{"cents", "10.50", "USD", false},
		{"zero", "0", "USD", true},
		{"negative", "-5", "USD", true},
		{"sub-cent", "1.005", "USD", true},
		{"yen has no minor unit", "100", "JPY", false},
		{"fractional yen", "100.5", "JPY", true},
		{"unknown currency", "10", "ZZZ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount), tt.currency)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25.00", FormatAmount(decimal.NewFromInt(25), "USD"))
	assert.Equal(t, "1000", FormatAmount(decimal.NewFromInt(1000), "JPY"))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindValidation, ErrorKind(fmt.Errorf("%w: bad", ErrValidation)))
	assert.Equal(t, KindNotFound, ErrorKind(fmt.Errorf("pool p1: %w", ErrNotFound)))
	assert.Equal(t, KindConflict, ErrorKind(ErrAlreadyDistributed))
	assert.Equal(t, KindConflict, ErrorKind(ErrPoolClosed))
	assert.Equal(t, KindGatewayRejected, ErrorKind(fmt.Errorf("capture: %w", ErrGatewayRejected)))
	assert.Equal(t, KindGatewayUnavailable, ErrorKind(ErrGatewayTimeout))
	assert.Equal(t, KindInternal, ErrorKind(fmt.Errorf("boom")))
	assert.Equal(t, Kind(""), ErrorKind(nil))
}

func TestTransactionStatusTerminal(t *testing.T) {
	assert.False(t, TxStatusCreated.IsTerminal())
	assert.False(t, TxStatusPending.IsTerminal())
	assert.False(t, TxStatusProcessing.IsTerminal())
	assert.True(t, TxStatusCompleted.IsTerminal())
	assert.True(t, TxStatusCanceled.IsTerminal())
	assert.True(t, TxStatusDenied.IsPayoutFailure())
	assert.False(t, TxStatusSuccess.IsPayoutFailure())
}
