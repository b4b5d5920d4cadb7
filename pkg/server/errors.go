package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pario-ai/llmgate/pkg/auth"
	"github.com/pario-ai/llmgate/pkg/gateway"
	"github.com/pario-ai/llmgate/pkg/models"
	"github.com/pario-ai/llmgate/pkg/ratelimit"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: errorDetail{Message: message, Type: "llmgate_error", Code: code}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSONError(w, http.StatusUnauthorized, message)
}

// writeGatewayError maps a gateway error to its HTTP response. It reports
// false for errors it does not recognize.
func writeGatewayError(w http.ResponseWriter, err error) bool {
	var ve *models.ValidationError
	var le *ratelimit.LimitError
	switch {
	case errors.As(err, &ve):
		writeJSONError(w, http.StatusUnprocessableEntity, ve.Error())
	case errors.As(err, &le):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(le.RetryAfter)))
		writeJSONError(w, http.StatusTooManyRequests, le.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeUnauthorized(w, "Could not validate credentials")
	case errors.Is(err, gateway.ErrBackend):
		writeJSONError(w, http.StatusInternalServerError, "Inference failed")
	default:
		return false
	}
	return true
}

func retryAfterSeconds(d time.Duration) int {
	n := int((d + time.Second - 1) / time.Second)
	if n < 1 {
		return 1
	}
	return n
}
