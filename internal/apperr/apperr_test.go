package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndHTTPStatus(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"validation", NewValidation("date", "must be YYYY-MM-DD"), KindValidation, http.StatusBadRequest},
		{"not found", &NotFoundError{Resource: "request", ID: "x"}, KindNotFound, http.StatusNotFound},
		{"authorization", &AuthorizationError{Reason: "secret mismatch"}, KindAuthorization, http.StatusForbidden},
		{"invalid state", &InvalidStateError{ID: "x", From: "approved", To: "approved"}, KindInvalidState, http.StatusConflict},
		{"transient", &TransientStoreError{Op: "find", Err: errors.New("conn reset")}, KindTransient, http.StatusServiceUnavailable},
		{"stale wrapping transient", &StaleDataError{Target: "2025-05", Attempts: 3, Err: &TransientStoreError{Op: "find"}}, KindStale, http.StatusServiceUnavailable},
		{"wrapped not found", fmt.Errorf("approve: %w", &NotFoundError{Resource: "request"}), KindNotFound, http.StatusNotFound},
		{"unknown", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, KindOf(tc.err))
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&TransientStoreError{Op: "find"}))
	assert.False(t, IsRetryable(&StaleDataError{Target: "2025-05", Err: &TransientStoreError{Op: "find"}}))
	assert.False(t, IsRetryable(NewValidation("role", "unknown role")))
	assert.False(t, IsRetryable(nil))
}

func TestValidationErrorMessage(t *testing.T) {
	v := &ValidationError{}
	assert.False(t, v.HasErrors())
	assert.Equal(t, "validation failed", v.Error())

	v.Add("role", "unknown role")
	v.Add("date", "must be YYYY-MM-DD")
	assert.True(t, v.HasErrors())
	assert.Equal(t, "validation failed: date: must be YYYY-MM-DD; role: unknown role", v.Error())
}

func TestFromStatusRoundTripsKind(t *testing.T) {
	err := FromStatus(http.StatusBadRequest, KindValidation, "validation failed", map[string]string{"date": "bad"})
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "validation failed", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "bad", ve.Fields["date"])

	assert.Equal(t, KindAuthorization, KindOf(FromStatus(http.StatusForbidden, "", "nope", nil)))
	assert.Equal(t, KindInvalidState, KindOf(FromStatus(http.StatusConflict, KindInvalidState, "not pending", nil)))
	assert.Equal(t, KindNotFound, KindOf(FromStatus(http.StatusNotFound, KindNotFound, "gone", nil)))
	assert.True(t, IsRetryable(FromStatus(http.StatusBadGateway, "", "upstream", nil)))
}
