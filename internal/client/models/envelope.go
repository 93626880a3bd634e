// Package models defines the wire shapes exchanged with the API: the common
// response envelope and the auth/user payloads.
package models

import "encoding/json"

// Envelope is the JSON wrapper every API endpoint responds with.
type Envelope[T any] struct {
	Success    bool            `json:"success"`
	Data       *T              `json:"data,omitempty"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
}
