package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// envelope is the dashboard's REST response wrapper: every JSON response
// from GET /agents, /tasks, /blacklist, /whitelist and /calls uses this
// shape, { "data": ..., "error": ... }, so the operator UI has one
// decoding path regardless of endpoint.
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// maxRequestBodySize bounds JSON bodies the REST surface accepts (a
// blacklist/whitelist POST); nothing this
// module sends or receives is anywhere near this large.
const maxRequestBodySize = 1 << 20

// defaultCallsPageSize and maxCallsPageSize bound GET /calls. A node handles
// one active call at a time, so even a long-running
// deployment's call history is modest next to a generic multi-tenant API's
// row counts -- these limits just keep one slow dashboard query from
// scanning the whole table.
const (
	defaultCallsPageSize = 25
	maxCallsPageSize     = 200
)

// CallsPage holds the parsed limit/offset query parameters for GET /calls.
type CallsPage struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// PaginatedCalls wraps a GET /calls page of call records with pagination
// metadata so the dashboard can render a "load more" control.
type PaginatedCalls struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// parseCallsPage extracts limit/offset from GET /calls's query string,
// returning a user-facing error string ("" on success).
func parseCallsPage(r *http.Request) (CallsPage, string) {
	q := r.URL.Query()

	limit := defaultCallsPageSize
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return CallsPage{}, "limit must be a positive integer"
		}
		if n > maxCallsPageSize {
			n = maxCallsPageSize
		}
		limit = n
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return CallsPage{}, "offset must be a non-negative integer"
		}
		offset = n
	}

	return CallsPage{Limit: limit, Offset: offset}, ""
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// readJSON decodes a JSON request body into dst -- used by the
// blacklist/whitelist POST handlers. It enforces a size limit, rejects
// unknown fields, and returns a user-friendly error string on failure
// ("" on success).
func readJSON(r *http.Request, dst any) string {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return "malformed json"
		case errors.As(err, &unmarshalErr):
			if unmarshalErr.Field != "" {
				return "invalid value for field " + unmarshalErr.Field
			}
			return "invalid json value"
		case errors.Is(err, io.EOF):
			return "request body must not be empty"
		case errors.As(err, &maxBytesErr):
			return "request body too large"
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return "unknown field " + field
		default:
			return "invalid request body"
		}
	}

	// Reject requests carrying more than one JSON value.
	if dec.More() {
		return "request body must contain a single json object"
	}

	return ""
}
