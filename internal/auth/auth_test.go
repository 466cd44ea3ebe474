package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.UserID != wantUser {
			t.Errorf("expected claims for %s, got %+v", wantUser, claims)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestIssueAndParseToken(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)
	token, expires, err := svc.IssueToken("u1", "alice", RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expires)
	}
	claims, err := svc.ParseToken(context.Background(), token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || !claims.IsAdmin() || claims.TokenID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	other := NewService("other-secret", time.Hour, nil)
	if _, err := other.ParseToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken("u1", "alice", RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = time.Now
	if _, err := svc.ParseToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRevokeToken(t *testing.T) {
	svc := NewService("secret", time.Hour, NewMemoryRevoker())
	token, _, _ := svc.IssueToken("u1", "alice", RoleUser)
	claims, err := svc.ParseToken(context.Background(), token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := svc.Revoke(context.Background(), claims); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.ParseToken(context.Background(), token); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
	fresh, _, _ := svc.IssueToken("u1", "alice", RoleUser)
	if _, err := svc.ParseToken(context.Background(), fresh); err != nil {
		t.Fatalf("a new token must stay valid, got %v", err)
	}
}

func TestMemoryRevokerExpires(t *testing.T) {
	m := NewMemoryRevoker()
	now := time.Now()
	m.now = func() time.Time { return now }
	_ = m.Revoke(context.Background(), "a", now.Add(time.Minute))
	if ok, _ := m.IsRevoked(context.Background(), "a"); !ok {
		t.Fatalf("expected revoked")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := m.IsRevoked(context.Background(), "a"); ok {
		t.Fatalf("expected revocation to lapse after expiry")
	}
}

func TestRequireAuth(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)
	token, _, _ := svc.IssueToken("u1", "alice", RoleUser)

	tests := []struct {
		name   string
		header string
		query  string
		media  bool
		status int
	}{
		{"missing", "", "", false, http.StatusUnauthorized},
		{"malformed header", "Token abc", "", false, http.StatusUnauthorized},
		{"bad token", "Bearer nope", "", false, http.StatusUnauthorized},
		{"bearer", "Bearer " + token, "", false, http.StatusNoContent},
		{"query not accepted for api", "", token, false, http.StatusUnauthorized},
		{"query accepted for media", "", token, true, http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			target := "/api/series"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h := svc.RequireAuth(okHandler(t, "u1"))
			if tc.media {
				h = svc.RequireMediaAuth(okHandler(t, "u1"))
			}
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	svc := NewService("secret", time.Hour, nil)
	userToken, _, _ := svc.IssueToken("u1", "alice", RoleUser)
	adminToken, _, _ := svc.IssueToken("u2", "root", RoleAdmin)
	h := svc.RequireRole(RoleAdmin)(okHandler(t, "u2"))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/rescan", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/rescan", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", rec.Code)
	}
}
