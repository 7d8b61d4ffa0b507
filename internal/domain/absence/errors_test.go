package absence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidationError_Is(t *testing.T) {
	err := fmt.Errorf("submit: %w", MissingField("justification"))

	assert.ErrorIs(t, err, ErrMissingField)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrInvalidRange)
	assert.EqualError(t, MissingField("justification"), "justification: is required")

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, CodeMissingField, ve.Code)
}

func TestInsufficientQuota_CarriesRemaining(t *testing.T) {
	err := InsufficientQuota("2025", decimal.NewFromInt(12), decimal.NewFromInt(7))

	assert.ErrorIs(t, err, ErrInsufficientQuota)
	if assert.NotNil(t, err.Remaining) {
		assert.True(t, decimal.NewFromInt(7).Equal(*err.Remaining))
	}
	assert.Contains(t, err.Error(), "only 7 remain for 2025")
}

func TestQuotaExceededError(t *testing.T) {
	var err error = &QuotaExceededError{PeriodKey: "2025", Requested: decimal.NewFromInt(20), Remaining: decimal.NewFromInt(5)}

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "quota exceeded for 2025: requested 20, remaining 5", err.Error())
}

func TestAllowsContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/png", true},
		{"image/jpeg", true},
		{"application/pdf", true},
		{"Application/PDF; charset=binary", true},
		{"application/msword", true},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", true},
		{"image/", false},
		{"application/zip", false},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AllowsContentType(tt.contentType), tt.contentType)
	}
}

func TestCategoryBelongsTo(t *testing.T) {
	assert.True(t, CategoryMaladie.BelongsTo(KindLeave))
	assert.False(t, CategoryMaladie.BelongsTo(KindPermission))
	assert.True(t, CategoryExceptionnel.BelongsTo(KindLeave))
	assert.True(t, CategoryExceptionnel.BelongsTo(KindPermission))
	assert.False(t, CategoryPersonnel.BelongsTo(KindLeave))
}
