package api

import (
	"encoding/json"
	"net/http"

	"droneops-relay/internal/ingest"
	"droneops-relay/internal/validate"
)

// MethodSubmit is the JSON-RPC method for scan ingestion.
const MethodSubmit = "scans.submit"

// RPCRequest represents a JSON-RPC 2.0 request
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error object
type RPCError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *RPCErrorData `json:"data,omitempty"`
}

// RPCErrorData carries the ingest rejection reason.
type RPCErrorData struct {
	Reason string `json:"reason"`
	Field  string `json:"field,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusOK, rpcFailure(nil, rpcParseError, "cannot read request body", nil))
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, rpcFailure(nil, rpcParseError, "Parse error", nil))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, http.StatusOK, rpcFailure(req.ID, rpcInvalidRequest, "Invalid Request", nil))
		return
	}
	switch req.Method {
	case MethodSubmit:
		writeJSON(w, http.StatusOK, s.rpcSubmit(r, req))
	default:
		writeJSON(w, http.StatusOK, rpcFailure(req.ID, rpcMethodNotFound, "Method not found", nil))
	}
}

func (s *Server) rpcSubmit(r *http.Request, req RPCRequest) RPCResponse {
	raw, err := validate.ParseRaw(req.Params)
	if err != nil {
		return rpcFailure(req.ID, rpcInvalidParams, "params must be an object",
			&RPCErrorData{Reason: string(ingest.MalformedPayload), Field: "params"})
	}
	rcpt, err := s.d.Ingest.Submit(r.Context(), raw.String("api_key"), raw)
	if err != nil {
		rej := ingest.AsRejection(err)
		body := rejectionBody(rej)
		return rpcFailure(req.ID, rpcCode(rej.Reason), body.Message,
			&RPCErrorData{Reason: string(rej.Reason), Field: rej.Field})
	}
	return RPCResponse{
		JSONRPC: "2.0",
		Result:  success{Success: true, Receipt: *rcpt},
		ID:      req.ID,
	}
}

func rpcFailure(id json.RawMessage, code int, msg string, data *RPCErrorData) RPCResponse {
	return RPCResponse{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: msg, Data: data},
		ID:      id,
	}
}
