// Package respond writes the JSON response envelope used by every API
// endpoint: {"requestId": ..., "data": ...} on success, with errors
// handled by the errors package in the same shape.
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the success response wrapper.
type Envelope struct {
	RequestID string `json:"requestId"`
	Data      any    `json:"data"`
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		RequestID: requestID,
		Data:      data,
	})
}
