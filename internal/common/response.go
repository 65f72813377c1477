package common

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse uses "detail" because that is the key the web client reads.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Detail: message})
}

// RespondWithDomainError picks status and message from err.
func RespondWithDomainError(w http.ResponseWriter, err error) {
	RespondWithError(w, HTTPStatusFromError(err), PublicMessage(err))
}

func RespondWithMessage(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, MessageResponse{Message: message})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
