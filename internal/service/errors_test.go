package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("days", "must be between 1 and 30")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", Conflict("dup", "duplicate"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestNotFoundOr(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(notFoundOr(gorm.ErrRecordNotFound, "reading not found")))

	err := notFoundOr(errors.New("connection reset"), "load reading")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestValidationCarriesField(t *testing.T) {
	err := Validation("value", "must be between 20 and 600")
	assert.Equal(t, "invalid_value", err.Code)
	assert.Equal(t, map[string]string{"value": "must be between 20 and 600"}, err.Fields)
}
