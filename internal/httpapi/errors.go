package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/mmynk/settleup/internal/calculator"
)

type errorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestID nullable.Nullable[string]         `json:"requestId,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er errorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestID = nullable.NewNullableWithValue(rid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(er)
}

// writeServiceError translates an error returned by the Connect handlers.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := connect.CodeInternal
	message := err.Error()
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		code = connectErr.Code()
		message = connectErr.Message()
	}

	status, name := statusOf(code)
	if status == http.StatusInternalServerError {
		message = "internal error"
	}

	var details map[string]any
	var validation *calculator.ValidationError
	if errors.As(err, &validation) {
		details = map[string]any{
			"kind":   validation.Kind,
			"id":     validation.ID,
			"reason": validation.Reason,
		}
	}

	writeError(w, r, status, name, message, details)
}

func statusOf(code connect.Code) (int, string) {
	switch code {
	case connect.CodeInvalidArgument:
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR"
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case connect.CodePermissionDenied:
		return http.StatusForbidden, "FORBIDDEN"
	case connect.CodeNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case connect.CodeFailedPrecondition, connect.CodeAlreadyExists:
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
