package httputil

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes carried in every refusal envelope.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeBusinessRule = "BUSINESS_RULE"
	CodeInternal     = "INTERNAL"
)

// Response is the envelope wrapping every JSON response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes why a request was refused.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a raw JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a successful enveloped response (200 OK)
func WriteData(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Response{Success: true, Data: data})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorCode writes a refusal envelope with the given status, code and message
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteDetailedError(w, status, code, message, nil)
}

// WriteDetailedError writes a refusal envelope with additional context
func WriteDetailedError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// WriteBadRequest writes a malformed input error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteUnauthorized writes an authentication error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// WriteForbidden writes a permission denial (403). The required action and
// resource tell the caller which grant they were missing; resourceID, when
// known, identifies the object the check was scoped to.
func WriteForbidden(w http.ResponseWriter, message, action, resource, resourceID string) {
	details := map[string]interface{}{
		"required": map[string]string{
			"action":   action,
			"resource": resource,
		},
	}
	if resourceID != "" {
		details["resource"] = resourceID
	}
	WriteDetailedError(w, http.StatusForbidden, CodeForbidden, message, details)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusNotFound, CodeNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorCode(w, http.StatusConflict, CodeConflict, message)
}

// WriteBusinessRule writes a business rule violation (422). The rule name is
// a stable identifier like "self_escalation" or "last_owner".
func WriteBusinessRule(w http.ResponseWriter, rule, message string) {
	WriteDetailedError(w, http.StatusUnprocessableEntity, CodeBusinessRule, message,
		map[string]interface{}{"rule": rule})
}

// WriteInternal writes an internal server error (500). The underlying error
// is never echoed to the client.
func WriteInternal(w http.ResponseWriter) {
	WriteErrorCode(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}
