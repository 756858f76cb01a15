package api

import (
	"net/http/httptest"
	"testing"
)

func TestOptionalDate(t *testing.T) {
	d, err := optionalDate("")
	if err != nil || d != nil {
		t.Errorf("empty input: got (%v, %v), want (nil, nil)", d, err)
	}

	d, err = optionalDate("2025-06-15")
	if err != nil || d == nil {
		t.Fatalf("valid input: got (%v, %v)", d, err)
	}
	if d.Format(dateLayout) != "2025-06-15" {
		t.Errorf("parsed date = %s", d.Format(dateLayout))
	}

	if _, err := optionalDate("15/06/2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestParsePagination(t *testing.T) {
	cases := []struct {
		url      string
		page     int
		pageSize int
	}{
		{"/api/expenses", 1, 10},
		{"/api/expenses?page=3&pageSize=25", 3, 25},
		{"/api/expenses?page=0&pageSize=0", 1, 1},
		{"/api/expenses?page=-2&pageSize=500", 1, 100},
		{"/api/expenses?page=abc&pageSize=xyz", 1, 10},
	}

	for _, tc := range cases {
		r := httptest.NewRequest("GET", tc.url, nil)
		page, pageSize := parsePagination(r)
		if page != tc.page || pageSize != tc.pageSize {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", tc.url, page, pageSize, tc.page, tc.pageSize)
		}
	}
}

func TestParseSearch(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/suppliers?q=%20feeds%20", nil)
	if got := parseSearch(r); got != "feeds" {
		t.Errorf("parseSearch = %q, want feeds", got)
	}
}
