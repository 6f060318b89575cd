package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"name": "test"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type application/json, got %q", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Error != "" {
		t.Errorf("expected empty error, got %q", env.Error)
	}

	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected data to be map, got %T", env.Data)
	}
	if data["name"] != "test" {
		t.Errorf("expected name=test, got %v", data["name"])
	}
}

func TestWriteJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, nil)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Data != nil {
		t.Errorf("expected nil data, got %v", env.Data)
	}
	if env.Error != "" {
		t.Errorf("expected empty error, got %q", env.Error)
	}
}

func TestWriteJSON_CustomStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]int{"id": 1})

	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Code)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected content-type application/json, got %q", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Error != "invalid input" {
		t.Errorf("expected error 'invalid input', got %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("expected nil data, got %v", env.Data)
	}
}

func TestWriteError_OmitsEmptyError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, "ok")

	body := w.Body.String()
	if strings.Contains(body, `"error"`) {
		t.Errorf("expected error field to be omitted, got %s", body)
	}
}

func TestReadJSON_Success(t *testing.T) {
	body := strings.NewReader(`{"caller":"+15551234567","reason":"spam"}`)
	r := httptest.NewRequest(http.MethodPost, "/blacklist", body)

	var dst struct {
		Caller string `json:"caller"`
		Reason string `json:"reason"`
	}

	errMsg := readJSON(r, &dst)
	if errMsg != "" {
		t.Fatalf("expected no error, got %q", errMsg)
	}
	if dst.Caller != "+15551234567" {
		t.Errorf("expected caller=+15551234567, got %q", dst.Caller)
	}
	if dst.Reason != "spam" {
		t.Errorf("expected reason=spam, got %q", dst.Reason)
	}
}

func TestReadJSON_EmptyBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/blacklist", strings.NewReader(""))

	var dst struct{}
	errMsg := readJSON(r, &dst)
	if errMsg != "request body must not be empty" {
		t.Errorf("expected 'request body must not be empty', got %q", errMsg)
	}
}

func TestReadJSON_MalformedJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/blacklist", strings.NewReader("{bad"))

	var dst struct{}
	errMsg := readJSON(r, &dst)
	if errMsg != "malformed json" {
		t.Errorf("expected 'malformed json', got %q", errMsg)
	}
}

func TestReadJSON_UnknownField(t *testing.T) {
	body := strings.NewReader(`{"caller":"+15551234567","extra":"field"}`)
	r := httptest.NewRequest(http.MethodPost, "/blacklist", body)

	var dst struct {
		Caller string `json:"caller"`
	}

	errMsg := readJSON(r, &dst)
	if !strings.HasPrefix(errMsg, "unknown field") {
		t.Errorf("expected 'unknown field ...' error, got %q", errMsg)
	}
}

func TestReadJSON_WrongType(t *testing.T) {
	body := strings.NewReader(`{"priority":"not_a_number"}`)
	r := httptest.NewRequest(http.MethodPost, "/blacklist", body)

	var dst struct {
		Priority int `json:"priority"`
	}

	errMsg := readJSON(r, &dst)
	if errMsg == "" {
		t.Error("expected error for wrong type, got empty string")
	}
}

func TestReadJSON_MultipleObjects(t *testing.T) {
	body := strings.NewReader(`{"caller":"+1"}{"caller":"+2"}`)
	r := httptest.NewRequest(http.MethodPost, "/blacklist", body)

	var dst struct {
		Caller string `json:"caller"`
	}

	errMsg := readJSON(r, &dst)
	if errMsg != "request body must contain a single json object" {
		t.Errorf("expected single object error, got %q", errMsg)
	}
}

func TestEnvelope_JSONFormat(t *testing.T) {
	e := envelope{Data: map[string]string{"call_id": "1"}}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	if !strings.Contains(string(b), `"data"`) {
		t.Error("expected 'data' field in output")
	}
	if strings.Contains(string(b), `"error"`) {
		t.Error("expected 'error' field to be omitted")
	}

	e = envelope{Error: "call not found"}
	b, err = json.Marshal(e)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if !strings.Contains(string(b), `"error":"call not found"`) {
		t.Errorf("expected error field, got %s", string(b))
	}
}

func TestParseCallsPage_Defaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/calls", nil)

	page, msg := parseCallsPage(r)
	if msg != "" {
		t.Fatalf("expected no error, got %q", msg)
	}
	if page.Limit != defaultCallsPageSize {
		t.Errorf("expected default limit %d, got %d", defaultCallsPageSize, page.Limit)
	}
	if page.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", page.Offset)
	}
}

func TestParseCallsPage_ClampsToMax(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/calls?limit=100000", nil)

	page, msg := parseCallsPage(r)
	if msg != "" {
		t.Fatalf("expected no error, got %q", msg)
	}
	if page.Limit != maxCallsPageSize {
		t.Errorf("expected limit clamped to %d, got %d", maxCallsPageSize, page.Limit)
	}
}

func TestParseCallsPage_RejectsNegativeOffset(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/calls?offset=-1", nil)

	_, msg := parseCallsPage(r)
	if msg != "offset must be a non-negative integer" {
		t.Errorf("expected negative-offset error, got %q", msg)
	}
}

func TestParseCallsPage_RejectsZeroLimit(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/calls?limit=0", nil)

	_, msg := parseCallsPage(r)
	if msg != "limit must be a positive integer" {
		t.Errorf("expected positive-limit error, got %q", msg)
	}
}

func TestPaginatedCalls_JSONShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, PaginatedCalls{Items: []string{"a", "b"}, Total: 2, Limit: 25, Offset: 0})

	var env struct {
		Data PaginatedCalls `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if env.Data.Total != 2 {
		t.Errorf("expected total=2, got %d", env.Data.Total)
	}
}
