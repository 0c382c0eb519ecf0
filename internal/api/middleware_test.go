package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost",
		"http://127.0.0.1:3000",
		"http://127.0.0.1",
		"https://localhost:5173",
		"http://[::1]:3000",
		"http://localhost:3000/",
	}

	for _, origin := range allowed {
		if !isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = false, want true", origin)
		}
	}

	denied := []string{
		"https://evil.com",
		"http://localhost.evil.com",
		"http://192.168.1.1:3000",
		"",
		"ftp://localhost:3000",
		"http://localhost:not-a-port",
		"http://localhost:70000",
		"http://localhost:3000/path",
		"http://user@localhost:3000",
		"http://localhost:3000?x=1",
		"null",
	}

	for _, origin := range denied {
		if isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = true, want false", origin)
		}
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"::1", true},
		{"[::1]", true},
		{"127.0.0.1", true},
		{"8.8.8.8:12345", false},
		{"192.168.1.1:8080", false},
		{"10.0.0.1:3000", false},
		{"not-an-ip:1234", false},
		{"", false},
		{"garbage", false},
	}

	for _, tc := range cases {
		if got := isLoopbackRemoteAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// through runs one request through mw wrapped around next.
func through(mw func(http.Handler) http.Handler, next http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mw(next).ServeHTTP(rr, req)
	return rr
}

func TestCORSAllowlist(t *testing.T) {
	const local = "http://localhost:3000"

	cases := []struct {
		name       string
		extra      []string
		method     string
		origin     string
		wantStatus int
		wantACAO   string
		wantNext   bool
	}{
		{"loopback origin", nil, http.MethodGet, local, http.StatusOK, local, true},
		{"extra origin", []string{"https://editor.example.com"}, http.MethodGet, "https://editor.example.com", http.StatusOK, "https://editor.example.com", true},
		{"denied origin still served", nil, http.MethodGet, "https://evil.com", http.StatusOK, "", true},
		{"no origin", nil, http.MethodGet, "", http.StatusOK, "", true},
		{"denied preflight", nil, http.MethodOptions, "https://evil.com", http.StatusForbidden, "", false},
		{"allowed preflight", nil, http.MethodOptions, local, http.StatusNoContent, local, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tc.method, "/projects/p1/media", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}

			rr := through(CORSAllowlist(tc.extra...), next, req)

			if rr.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantACAO {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tc.wantACAO)
			}
			if called != tc.wantNext {
				t.Errorf("next called = %v, want %v", called, tc.wantNext)
			}
			if tc.wantACAO != "" && rr.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", rr.Header().Get("Vary"))
			}
		})
	}
}

func TestCORSAllowlist_PreflightHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/media/abc", nil)
	req.Header.Set("Origin", "http://127.0.0.1:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := through(CORSAllowlist(), okHandler(), req)

	want := map[string][]string{
		"Access-Control-Allow-Headers":  {"Range", "Content-Type", "Authorization", "X-Request-ID"},
		"Access-Control-Expose-Headers": {"Content-Range", "Accept-Ranges", "Content-Length", "Content-Type"},
		"Access-Control-Allow-Methods":  {"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	}
	for header, values := range want {
		got := rr.Header().Get(header)
		for _, v := range values {
			if !containsHeader(got, v) {
				t.Errorf("%s = %q, missing %q", header, got, v)
			}
		}
	}
	if rr.Header().Get("Access-Control-Max-Age") == "" {
		t.Error("preflight missing Access-Control-Max-Age")
	}
}

func TestCORSAllowlist_VaryIsAdditive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	rr.Header().Set("Vary", "Accept-Encoding")

	CORSAllowlist()(okHandler()).ServeHTTP(rr, req)

	vary := strings.Join(rr.Header().Values("Vary"), ",")
	if !containsHeader(vary, "Accept-Encoding") || !containsHeader(vary, "Origin") {
		t.Errorf("Vary = %q, want Accept-Encoding and Origin", vary)
	}
}

func containsHeader(headerVal, target string) bool {
	for _, part := range strings.Split(headerVal, ",") {
		if strings.TrimSpace(part) == target {
			return true
		}
	}
	return false
}

func TestLoopbackGuard(t *testing.T) {
	cases := []struct {
		addr string
		want int
	}{
		{"127.0.0.1:12345", http.StatusOK},
		{"[::1]:12345", http.StatusOK},
		{"8.8.8.8:12345", http.StatusForbidden},
		{"192.168.1.20:5000", http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/media/abc", nil)
		req.RemoteAddr = tc.addr
		rr := through(LoopbackGuard(), okHandler(), req)
		if rr.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.addr, rr.Code, tc.want)
			continue
		}
		if tc.want == http.StatusForbidden {
			if code := decodeJSONBody(t, rr)["code"]; code != "FORBIDDEN" {
				t.Errorf("%s: code = %v, want FORBIDDEN", tc.addr, code)
			}
		}
	}
}

type staticTokens struct {
	token string
}

func (s staticTokens) GetConfig(_ context.Context, key string) (string, error) {
	if key == authTokenKey {
		return s.token, nil
	}
	return "", nil
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(staticTokens{token: "secret"}, testLogger())(okHandler())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"prefix of token", "Bearer secre", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestAuthMiddleware_NoStoredToken(t *testing.T) {
	handler := AuthMiddleware(staticTokens{}, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 8 {
		t.Fatalf("request id = %q, want 8 chars", seen)
	}
	if got := rr.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID = %q, want %q", got, seen)
	}
}

func TestRequestIDMiddleware_KeepsClientID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFrom(r.Context())
	}))

	cases := []struct {
		header string
		keep   bool
	}{
		{"abc-123", true},
		{"has space", false},
		{strings.Repeat("a", 65), false},
		{"<script>", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", tc.header)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if got := seen == tc.header; got != tc.keep {
			t.Errorf("header %q kept = %v, want %v (seen %q)", tc.header, got, tc.keep, seen)
		}
	}
}

func TestLoggingMiddleware_CountsBytes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log record: %v (%s)", err, buf.String())
	}
	if rec["status"] != float64(http.StatusTeapot) || rec["bytes"] != float64(5) || rec["path"] != "/x" {
		t.Errorf("record = %v", rec)
	}
}
