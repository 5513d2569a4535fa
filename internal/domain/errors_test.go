package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "bad input")
	assert.Equal(t, "[VALIDATION_ERROR] bad input", err.Error())

	wrapped := NewDomainErrorWithCause(ErrCodePersistence, "store unavailable", errors.New("dial tcp: refused"))
	assert.Equal(t, "[PERSISTENCE_ERROR] store unavailable: dial tcp: refused", wrapped.Error())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeEmptyCorpus, ErrorCode(ErrEmptyCorpus))
	assert.Equal(t, ErrCodeTransient, ErrorCode(fmt.Errorf("%w: connection reset", ErrTransientNetwork)))
	assert.Equal(t, ErrCodeInternalError, ErrorCode(errors.New("plain")))
}

func TestSentinelWrapping(t *testing.T) {
	err := fmt.Errorf("%w: unexpected status 503", ErrTransientNetwork)
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.NotErrorIs(t, err, ErrArtifactAuth)

	var domainErr *DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ErrCodeTransient, domainErr.Code)
}
