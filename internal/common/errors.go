package common

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidation       = errors.New("validation failed")
	ErrInternalServer   = errors.New("internal server error")
	ErrTransientStorage = errors.New("storage temporarily unavailable")

	ErrDuplicateUsername = errors.New("username already registered")

	// Authentication failures. All of them surface as the same 401 response.
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrTokenExpired        = errors.New("token has expired")
	ErrTokenMalformed      = errors.New("token is malformed")
	ErrTokenMissingSubject = errors.New("token has no subject")
	ErrInvalidCredentials  = errors.New("invalid credentials")

	ErrPostNotFound  = errors.New("post not found")
	ErrAlreadyRated  = errors.New("you have already rated this post")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// IsAuthError reports whether err is one of the authentication failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenMissingSubject) ||
		errors.Is(err, ErrInvalidCredentials)
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsAuthError(err) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrPostNotFound) || errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrAlreadyRated) ||
		errors.Is(err, ErrInvalidRating) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrTransientStorage) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var publicErrors = []error{
	ErrDuplicateUsername,
	ErrPostNotFound,
	ErrAlreadyRated,
	ErrInvalidRating,
	ErrValidation,
	ErrNotFound,
}

// PublicMessage is the text a client may see for err. Wrapping context and
// internal failures are never echoed back.
func PublicMessage(err error) string {
	switch HTTPStatusFromError(err) {
	case http.StatusUnauthorized:
		return ErrInvalidCredentials.Error()
	case http.StatusServiceUnavailable:
		return ErrTransientStorage.Error()
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ErrInternalServer.Error()
}

// ValidationError carries field level detail and matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
