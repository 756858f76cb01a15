package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthRequired(t *testing.T) {
	s := testServer()

	protected := s.authRequired(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := r.Context().Value(userIDContextKey).(int64)
		if !ok {
			t.Error("user id missing from context")
		}
		if uid != 42 {
			t.Errorf("user id = %d, want 42", uid)
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		token, err := s.signToken(42, "jane@example.com", "user")
		if err != nil {
			t.Fatalf("signToken: %v", err)
		}
		r := httptest.NewRequest("GET", "/api/batches", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, r)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/batches", nil)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": int64(42), "exp": time.Now().Add(time.Hour).Unix()}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		r := httptest.NewRequest("GET", "/api/batches", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": int64(42), "exp": time.Now().Add(-time.Hour).Unix()}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		r := httptest.NewRequest("GET", "/api/batches", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, r)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestParseTokenUserID(t *testing.T) {
	cases := []struct {
		name    string
		raw     any
		want    int64
		wantErr bool
	}{
		{"float64", float64(7), 7, false},
		{"int64", int64(9), 9, false},
		{"string", "12", 12, false},
		{"fractional float", 7.5, 0, true},
		{"garbage string", "seven", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTokenUserID(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Errorf("forwarded: got %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.4:51234"
	if got := clientIP(r); got != "192.0.2.4" {
		t.Errorf("remote addr: got %q", got)
	}
}

func TestAttemptLimiter(t *testing.T) {
	l := newAttemptLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("attempt %d blocked too early", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Error("fourth attempt should be blocked")
	}
	if !l.allow("5.6.7.8") {
		t.Error("other key should be independent")
	}
}

func TestAttemptLimiterWindowExpiry(t *testing.T) {
	l := newAttemptLimiter(1, time.Millisecond)
	if !l.allow("1.2.3.4") {
		t.Fatal("first attempt blocked")
	}
	if l.allow("1.2.3.4") {
		t.Fatal("second attempt inside window allowed")
	}
	time.Sleep(5 * time.Millisecond)
	if !l.allow("1.2.3.4") {
		t.Error("attempt after window expiry blocked")
	}
}

func TestAttemptLimiterSweep(t *testing.T) {
	l := newAttemptLimiter(1, time.Millisecond)
	l.attempts["stale"] = loginAttempt{count: 1, windowStart: time.Now().Add(-time.Second)}
	l.attempts["fresh"] = loginAttempt{count: 1, windowStart: time.Now()}

	l.mu.Lock()
	l.sweep(time.Now())
	l.mu.Unlock()

	if _, ok := l.attempts["stale"]; ok {
		t.Error("expired entry survived sweep")
	}
	if _, ok := l.attempts["fresh"]; !ok {
		t.Error("live entry removed by sweep")
	}
}
