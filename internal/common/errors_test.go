package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrValidation, http.StatusBadRequest},
		{ErrDuplicateUsername, http.StatusBadRequest},
		{ErrAlreadyRated, http.StatusBadRequest},
		{ErrInvalidRating, http.StatusBadRequest},
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrTokenExpired, http.StatusUnauthorized},
		{ErrTokenMalformed, http.StatusUnauthorized},
		{ErrTokenMissingSubject, http.StatusUnauthorized},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrPostNotFound, http.StatusNotFound},
		{ErrTransientStorage, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", ErrAlreadyRated), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusFromError(tc.err), "%v", tc.err)
	}
}

func TestPublicMessage_HidesAuthReasonAndInternals(t *testing.T) {
	assert.Equal(t, ErrInvalidCredentials.Error(), PublicMessage(ErrTokenExpired))
	assert.Equal(t, ErrInvalidCredentials.Error(), PublicMessage(ErrUnauthenticated))
	assert.Equal(t, ErrInternalServer.Error(), PublicMessage(errors.New("pq: secret table detail")))
	assert.Equal(t, ErrAlreadyRated.Error(), PublicMessage(ErrAlreadyRated))
}

func TestRespondWithDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDomainError(rec, fmt.Errorf("rate: %w", ErrPostNotFound))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "post not found", body.Detail)
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("signup: %w", &ValidationError{Fields: map[string]string{
		"username": "must be alphanumeric",
		"password": "too short",
	}})

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromError(err))
	assert.Equal(t, "validation failed: password: too short; username: must be alphanumeric", PublicMessage(err))
}
