package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// testServer returns a Server with no database connection. Handlers under
// test must reject the request before any query runs.
func testServer() *Server {
	return &Server{
		jwtSecret:       []byte("test-secret"),
		logger:          zap.NewNop(),
		defaultCurrency: "KES",
		loginLimiter:    newAttemptLimiter(10, 0),
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body["error"]
}

func TestCreateBatchValidation(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed json",
			payload:  "{not json",
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid request payload",
		},
		{
			name:     "missing required fields",
			payload:  `{"batch_name": "June Layers"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "Missing required fields",
		},
		{
			name: "unknown breed",
			payload: `{"batch_name": "June Ducks", "supplier": "Kukuchic", "breed": "Ducks",
				"arrival_date": "2025-06-01", "intake_age_days": 0, "initial_quantity": 100}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "breed must be Layers, Broilers or Kenbro",
		},
		{
			name: "bad arrival date",
			payload: `{"batch_name": "June Layers", "supplier": "Kukuchic", "breed": "Layers",
				"arrival_date": "01/06/2025", "intake_age_days": 0, "initial_quantity": 100}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "arrival_date must be YYYY-MM-DD",
		},
		{
			name: "negative cost",
			payload: `{"batch_name": "June Layers", "supplier": "Kukuchic", "breed": "Layers",
				"arrival_date": "2025-06-01", "intake_age_days": 0, "initial_quantity": 100,
				"cost_per_bird": -10}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "cost values cannot be negative",
		},
		{
			name: "over allocation",
			payload: `{"batch_name": "June Layers", "supplier": "Kukuchic", "breed": "Layers",
				"arrival_date": "2025-06-01", "intake_age_days": 0, "initial_quantity": 100,
				"coop_allocations": [
					{"coop_id": "coop-a", "allocated_quantity": 60},
					{"coop_id": "coop-b", "allocated_quantity": 60}
				]}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "allocated birds exceed batch size",
		},
		{
			name: "bad placement date",
			payload: `{"batch_name": "June Layers", "supplier": "Kukuchic", "breed": "Layers",
				"arrival_date": "2025-06-01", "intake_age_days": 0, "initial_quantity": 100,
				"coop_allocations": [
					{"coop_id": "coop-a", "allocated_quantity": 60, "placement_date": "June 1st"}
				]}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "placement_date must be YYYY-MM-DD",
		},
	}

	s := testServer()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/batches", strings.NewReader(tc.payload))
			rec := httptest.NewRecorder()
			s.handleCreateBatch(rec, r)

			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := decodeError(t, rec); got != tc.wantErr {
				t.Errorf("error = %q, want %q", got, tc.wantErr)
			}
		})
	}
}

func TestGetBatchInvalidID(t *testing.T) {
	s := testServer()
	r := httptest.NewRequest("GET", "/api/batches/abc", nil)
	r.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	s.handleGetBatch(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec); got != "Invalid ID" {
		t.Errorf("error = %q, want Invalid ID", got)
	}
}

func TestUpdateBatchInvalidID(t *testing.T) {
	s := testServer()
	r := httptest.NewRequest("PUT", "/api/batches/x", strings.NewReader(`{}`))
	r.SetPathValue("id", "x")
	rec := httptest.NewRecorder()
	s.handleUpdateBatch(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
