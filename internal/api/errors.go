package api

import (
	"encoding/json"
	"net/http"

	"droneops-relay/internal/ingest"
)

// JSON-RPC error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
	rpcInvalidAPIKey  = -32001
	rpcForbidden      = -32003
)

func httpStatus(reason ingest.Reason) int {
	switch reason {
	case ingest.InvalidAPIKey:
		return http.StatusUnauthorized
	case ingest.IdentityMismatch:
		return http.StatusForbidden
	case ingest.MissingFields, ingest.MalformedPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func rpcCode(reason ingest.Reason) int {
	switch reason {
	case ingest.InvalidAPIKey:
		return rpcInvalidAPIKey
	case ingest.IdentityMismatch:
		return rpcForbidden
	case ingest.MissingFields, ingest.MalformedPayload:
		return rpcInvalidParams
	default:
		return rpcInternalError
	}
}

// failure is the plain HTTP error body.
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func rejectionBody(rej *ingest.Rejection) failure {
	msg := rej.Message
	if rej.Reason == ingest.InternalError {
		msg = "internal error"
	}
	return failure{Error: string(rej.Reason), Field: rej.Field, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
