package api

import "testing"

func TestNormalizeKenyaPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", true},
		{"0712345678", "+254712345678", true},
		{"254712345678", "+254712345678", true},
		{"+254712345678", "+254712345678", true},
		{"0112345678", "+254112345678", true},
		{"0712 345 678", "+254712345678", true},
		{"12345", "", false},
		{"+14155552671", "", false},
	}

	for _, tc := range cases {
		got, ok := normalizeKenyaPhone(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("normalizeKenyaPhone(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTrimZero(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1500, "1500"},
		{1500.5, "1500.5"},
		{1500.25, "1500.25"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := trimZero(tc.in); got != tc.want {
			t.Errorf("trimZero(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	s := testServer()
	if got := s.formatMoney(2500.5); got != "KES 2500.5" {
		t.Errorf("formatMoney = %q", got)
	}
}
