package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shoplane/commerce-core/internal/domain"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

// writeEntity is writeSuccess plus the entity's revision marker in the ETag
// header. Clients echo it back via If-Match on their next conditional write.
func writeEntity(w http.ResponseWriter, statusCode int, data any, rev domain.Revision) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(int64(rev), 10)))
	writeSuccess(w, statusCode, data)
}

func writePage(w http.ResponseWriter, items any, nextPageToken string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"data":            items,
		"next_page_token": nextPageToken,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}
