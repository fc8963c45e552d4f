package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := NewDomainErrorf(CodeInsufficientBalance, "requested %d, available %d", 10, 5)

	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "requested 10, available 5", err.Error())
}

func TestDomainError_IsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("advance vault: %w", NewDomainError(CodeIndexIntegrityViolation, "candidate below current"))

	assert.True(t, errors.Is(wrapped, ErrIndexIntegrityViolation))

	var domainErr *DomainError
	assert.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, CodeIndexIntegrityViolation, domainErr.Code)
}

func TestDomainError_IsRejectsOtherErrorTypes(t *testing.T) {
	assert.False(t, ErrNotFound.Is(errors.New("NOT_FOUND")))
}
