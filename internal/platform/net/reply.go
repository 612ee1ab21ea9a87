package net

import (
	"net/http"

	perr "mpak/internal/platform/errors"
)

// Envelope is the JSON body of every enveloped response
type Envelope struct {
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	Field      string `json:"field,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// Success wraps data in a status envelope
func Success(status int, data any, reqID string) Envelope {
	return Envelope{StatusCode: status, Status: http.StatusText(status), RequestID: reqID, Data: data}
}

// Error maps err to its status and an error envelope; internal causes are masked
func Error(err error, reqID string) (int, Envelope) {
	status, w := perr.HTTP(err)
	env := Success(status, nil, reqID)
	env.Code, env.Error, env.Field = w.Code, w.Message, w.Field
	return status, env
}
