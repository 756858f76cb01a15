package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateSupplierValidation(t *testing.T) {
	s := testServer()

	t.Run("missing name", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/suppliers", strings.NewReader(`{"name": "  "}`))
		rec := httptest.NewRecorder()
		s.handleCreateSupplier(rec, r)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if got := decodeError(t, rec); got != "name is required" {
			t.Errorf("error = %q", got)
		}
	})

	t.Run("bad phone", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/suppliers",
			strings.NewReader(`{"name": "Kukuchic", "phone": "12345"}`))
		rec := httptest.NewRecorder()
		s.handleCreateSupplier(rec, r)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if got := decodeError(t, rec); got != "phone must be a valid Kenyan number" {
			t.Errorf("error = %q", got)
		}
	})
}

func TestCreateFeedIntakeValidation(t *testing.T) {
	s := testServer()

	cases := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			name:    "missing fields",
			payload: `{"feed_type": "Growers Mash"}`,
			wantErr: "Missing required fields",
		},
		{
			name: "negative cost",
			payload: `{"delivery_date": "2025-06-10", "feed_type": "Growers Mash",
				"input_mode": "bags", "received_by": "Jane", "total_cost": -100}`,
			wantErr: "quantities cannot be negative",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/feed-intakes", strings.NewReader(tc.payload))
			rec := httptest.NewRecorder()
			s.handleCreateFeedIntake(rec, r)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec); got != tc.wantErr {
				t.Errorf("error = %q, want %q", got, tc.wantErr)
			}
		})
	}
}
