package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"positive with cents", "100.25", true},
		{"smallest unit", "0.01", true},
		{"largest value", "9999999999999.99", true},
		{"zero", "0", false},
		{"negative", "-5.00", false},
		{"three decimals", "1.005", false},
		{"too many digits", "10000000000000.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.value))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestValidateBalance(t *testing.T) {
	assert.NoError(t, ValidateBalance(decimal.Zero))
	assert.NoError(t, ValidateBalance(decimal.RequireFromString("12.50")))
	assert.ErrorIs(t, ValidateBalance(decimal.RequireFromString("-0.01")), ErrValidation)
}

func TestNow(t *testing.T) {
	now := Now()
	assert.Equal(t, now, now.Truncate(time.Microsecond))
	assert.Equal(t, "UTC", now.Location().String())
}
