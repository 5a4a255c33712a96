package handler

import "time"

// envelope is the success body shared by every endpoint.
type envelope struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Data      any        `json:"data,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type errorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errorEnvelope is the failure body written by the HTTP error handler.
type errorEnvelope struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}
