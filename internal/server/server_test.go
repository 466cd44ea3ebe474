package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"reelshelf/internal/accounts"
	"reelshelf/internal/auth"
	"reelshelf/internal/catalog"
	"reelshelf/internal/stream"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

type testEnv struct {
	root    string
	handler http.Handler
	auth    *auth.Service
	user    string
	admin   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "Comedy", "ShowA", "ep2.mp4"), "episode two")
	write(t, filepath.Join(root, "Comedy", "ShowA", "Ep1.mp4"), strings.Repeat("a", 4096))
	write(t, filepath.Join(root, "Comedy", "ShowA", "img.jpg"), "jpeg")
	write(t, filepath.Join(root, "Drama", "ShowB", "pilot.webm"), "pilot")
	write(t, filepath.Join(root, "Special", "movie.mp4"), "movie")
	write(t, filepath.Join(root, "Adult", "Late", "night.mp4"), "late")

	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return string(h)
	}
	users, err := accounts.Parse([]byte(fmt.Sprintf(`users:
  - username: alice
    password_hash: %q
  - username: root
    password_hash: %q
    role: admin
  - username: carol
    password_hash: %q
    approved: false
`, hash("alice-pw"), hash("root-pw"), hash("carol-pw"))))
	if err != nil {
		t.Fatalf("parse users: %v", err)
	}

	logger := zerolog.Nop()
	authSvc := auth.NewService("test-secret", time.Hour, auth.NewMemoryRevoker())
	srv := New(Deps{
		Catalog:      catalog.NewCache(catalog.Scanner{Root: root, Logger: logger}, time.Minute, "default"),
		AdminCatalog: catalog.NewCache(catalog.Scanner{Root: root, IncludeAdult: true, Logger: logger}, time.Minute, "admin"),
		Streamer:     stream.NewStreamer(logger),
		Auth:         authSvc,
		Accounts:     users,
		Logger:       logger,
	}, Options{LoginRate: 100, LoginBurst: 100})

	userToken, _, _ := authSvc.IssueToken("alice", "alice", auth.RoleUser)
	adminToken, _, _ := authSvc.IssueToken("root", "root", auth.RoleAdmin)
	return &testEnv{root: root, handler: srv.Handler(), auth: authSvc, user: userToken, admin: adminToken}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestSeriesRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/series", "", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/series?token="+env.user, "", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("query tokens must not work for the api, got %d", rec.Code)
	}
}

func TestListSeries(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/series", env.user, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var series []catalog.Series
	decode(t, rec, &series)
	if len(series) != 3 {
		t.Fatalf("expected 3 series, got %d", len(series))
	}
	for _, s := range series {
		if strings.HasPrefix(s.ID, "Adult") {
			t.Fatalf("adult series leaked into default catalog")
		}
	}

	rec = env.do(t, http.MethodGet, "/api/series?search=SHOW!", env.user, nil, nil)
	decode(t, rec, &series)
	if len(series) != 2 {
		t.Fatalf("expected 2 matches for show, got %d", len(series))
	}
}

func TestSeriesDetail(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/series/comedy/showa", env.user, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var s catalog.Series
	decode(t, rec, &s)
	if s.ID != "Comedy/ShowA" || len(s.Videos) != 2 {
		t.Fatalf("unexpected detail %+v", s)
	}
	if s.Videos[0].Filename != "Ep1.mp4" || s.Videos[0].Title != "Ep1" {
		t.Fatalf("expected case-insensitive order, got %+v", s.Videos)
	}

	tests := []struct {
		target string
		status int
	}{
		{"/api/series/Missing", http.StatusNotFound},
		{"/api/series/Comedy", http.StatusNotFound},
		{"/api/series/..%2F..%2Fetc", http.StatusForbidden},
		{"/api/series/%2e%2e/Special", http.StatusForbidden},
		{"/api/series/Adult/Late", http.StatusForbidden},
		{"/api/series/ADULT/late", http.StatusForbidden},
	}
	for _, tc := range tests {
		if rec := env.do(t, http.MethodGet, tc.target, env.user, nil, nil); rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.target, tc.status, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/api/series/Adult/Late", env.admin, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin should see adult detail, got %d", rec.Code)
	}
}

func TestGenres(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/genres", env.user, nil, nil)
	var genres map[string][]catalog.Series
	decode(t, rec, &genres)
	for _, key := range []string{"Comedy", "Drama", catalog.OtherBucket} {
		if len(genres[key]) != 1 {
			t.Fatalf("expected one series under %s, got %+v", key, genres)
		}
	}
	if len(genres) != 3 {
		t.Fatalf("unexpected genre keys %v", genres)
	}
	if genres["Comedy"][0].VideoCount != 2 || genres["Comedy"][0].Videos != nil {
		t.Fatalf("expected summaries, got %+v", genres["Comedy"][0])
	}
}

func TestMediaStreaming(t *testing.T) {
	env := newTestEnv(t)
	q := "?token=" + env.user

	rec := env.do(t, http.MethodGet, "/videos/Comedy/ShowA/Ep1.mp4"+q, "", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.Len() != 4096 {
		t.Fatalf("expected full file, got %d with %d bytes", rec.Code, rec.Body.Len())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected cors header on media")
	}

	rec = env.do(t, http.MethodGet, "/videos/comedy/SHOWA/ep1.MP4"+q, "", nil, http.Header{"Range": {"bytes=100-"}})
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 100-4095/4096" {
		t.Fatalf("unexpected content range %q", got)
	}

	rec = env.do(t, http.MethodGet, "/videos/Comedy/ShowA/Ep1.mp4", env.user, nil, http.Header{"Range": {"bytes=9999-"}})
	if rec.Code != http.StatusRequestedRangeNotSatisfiable || rec.Header().Get("Content-Range") != "bytes */4096" {
		t.Fatalf("expected 416, got %d %q", rec.Code, rec.Header().Get("Content-Range"))
	}
}

func TestMediaErrors(t *testing.T) {
	env := newTestEnv(t)
	q := "?token=" + env.user
	tests := []struct {
		target string
		status int
	}{
		{"/videos/Comedy/ShowA/Ep1.mp4", http.StatusUnauthorized},
		{"/videos/../../etc/passwd" + q, http.StatusForbidden},
		{"/videos/%2e%2e/secret.mp4" + q, http.StatusForbidden},
		{"/videos/Comedy/..%5C..%5Csecret" + q, http.StatusForbidden},
		{"/videos/Comedy/ShowA/missing.mp4" + q, http.StatusNotFound},
		{"/videos/" + q, http.StatusNotFound},
		{"/videos/Adult/Late/night.mp4" + q, http.StatusForbidden},
		{"/videos/adult/late/NIGHT.mp4" + q, http.StatusForbidden},
	}
	for _, tc := range tests {
		if rec := env.do(t, http.MethodGet, tc.target, "", nil, nil); rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.target, tc.status, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/videos/Adult/Late/night.mp4", env.admin, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin should stream adult content, got %d", rec.Code)
	}
}

func TestMediaThumbnail(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/videos/Comedy/ShowA/img.jpg", env.user, nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "jpeg" {
		t.Fatalf("unexpected thumbnail response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Fatalf("unexpected cache control %q", rec.Header().Get("Cache-Control"))
	}
}

func TestMediaPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodOptions, "/videos/Comedy/ShowA/Ep1.mp4", "", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Range") {
		t.Fatalf("expected Range in allowed headers")
	}
}

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "carol", "password": "carol-pw"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for pending account, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/login", "", map[string]string{"username": "alice", "password": "alice-pw"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	decode(t, rec, &resp)
	if resp.Token == "" || resp.User.Role != auth.RoleUser {
		t.Fatalf("unexpected login response %+v", resp)
	}

	if rec := env.do(t, http.MethodGet, "/api/series", resp.Token, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("fresh token rejected: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/logout", resp.Token, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/series", resp.Token, nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	srv := New(Deps{
		Catalog:      catalog.NewCache(catalog.Scanner{Root: env.root, Logger: zerolog.Nop()}, time.Minute, "default"),
		AdminCatalog: catalog.NewCache(catalog.Scanner{Root: env.root, IncludeAdult: true, Logger: zerolog.Nop()}, time.Minute, "admin"),
		Streamer:     stream.NewStreamer(zerolog.Nop()),
		Auth:         env.auth,
		Logger:       zerolog.Nop(),
	}, Options{LoginRate: 0.001, LoginBurst: 2})
	h := srv.Handler()

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"x","password":"y"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{"seriesId": "Comedy/ShowA", "videoFile": "Ep1.mp4", "currentTime": 12.5, "duration": 60}
	if rec := env.do(t, http.MethodPost, "/api/progress", env.user, body, nil); rec.Code != http.StatusOK {
		t.Fatalf("save failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/progress", env.user, map[string]string{"videoFile": "x"}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing series, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/progress", env.user, nil, nil)
	var got map[string]map[string]struct {
		CurrentTime float64 `json:"currentTime"`
	}
	decode(t, rec, &got)
	if got["Comedy/ShowA"]["Ep1.mp4"].CurrentTime != 12.5 {
		t.Fatalf("unexpected progress %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/progress", env.admin, nil, nil)
	decode(t, rec, &got)
	if len(got) != 0 {
		t.Fatalf("progress leaked between users: %+v", got)
	}
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/admin/series", env.user, nil, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/admin/series", env.admin, nil, nil)
	var series []catalog.Series
	decode(t, rec, &series)
	if len(series) != 4 {
		t.Fatalf("expected 4 series including adult, got %d", len(series))
	}

	// prime the default cache, then add a series and force a rescan
	env.do(t, http.MethodGet, "/api/series", env.user, nil, nil)
	write(t, filepath.Join(env.root, "Drama", "ShowC", "ep.mkv"), "c")
	if rec := env.do(t, http.MethodGet, "/api/series", env.user, nil, nil); strings.Contains(rec.Body.String(), "ShowC") {
		t.Fatalf("new series must not appear before rescan")
	}
	if rec := env.do(t, http.MethodPost, "/api/admin/rescan", env.admin, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("rescan failed: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/series", env.user, nil, nil); !strings.Contains(rec.Body.String(), "ShowC") {
		t.Fatalf("expected ShowC after rescan")
	}
}
