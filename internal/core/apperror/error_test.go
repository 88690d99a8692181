package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStock_Details(t *testing.T) {
	err := NewInsufficientStock("p-1", 10, 5)

	assert.Equal(t, CodeInsufficientStock, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, int64(10), err.Details["requested"])
	assert.Equal(t, int64(5), err.Details["available"])
	assert.Equal(t, int64(5), err.Details["shortfall"])
}

func TestIsCode_ThroughWrapping(t *testing.T) {
	base := NewInvalidTransition("approve", "DRAFT", []string{"PENDING"})
	wrapped := fmt.Errorf("workflow: %w", base)

	assert.True(t, IsCode(wrapped, CodeInvalidTransition))
	assert.False(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(errors.New("plain"), CodeInvalidTransition))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(wrapped))
}

func TestConcurrencyConflict_SharesCode(t *testing.T) {
	cause := errors.New("could not serialize access")
	err := NewConcurrencyConflict(cause)

	assert.True(t, IsConcurrentModification(err))
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsConcurrentModification(NewConcurrentModification("doc_invoices", "x")))
}
