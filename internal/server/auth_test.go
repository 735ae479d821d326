package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		apiKey     string
		header     string
		wantCode   int
		wantErr    string
		wantChalng string
	}{
		{name: "disabled", apiKey: "", header: "", wantCode: http.StatusOK},
		{name: "disabled ignores header", apiKey: "", header: "Bearer anything", wantCode: http.StatusOK},
		{name: "missing header", apiKey: "secret", wantCode: http.StatusUnauthorized, wantErr: "authorization required", wantChalng: `Bearer realm="docqa"`},
		{name: "basic scheme", apiKey: "secret", header: "Basic dXNlcjpwYXNz", wantCode: http.StatusUnauthorized, wantErr: "authorization required"},
		{name: "wrong token", apiKey: "secret", header: "Bearer nope", wantCode: http.StatusUnauthorized, wantErr: "invalid token", wantChalng: `error="invalid_token"`},
		{name: "prefix of key", apiKey: "secret", header: "Bearer secre", wantCode: http.StatusUnauthorized, wantErr: "invalid token"},
		{name: "correct token", apiKey: "secret", header: "Bearer secret", wantCode: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", header: "bearer secret", wantCode: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if tc.wantErr != "" {
				var body errorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if body.Error != tc.wantErr {
					t.Errorf("error = %q, want %q", body.Error, tc.wantErr)
				}
			}
			if tc.wantChalng != "" && !strings.Contains(w.Header().Get("WWW-Authenticate"), tc.wantChalng) {
				t.Errorf("WWW-Authenticate = %q, want it to contain %q", w.Header().Get("WWW-Authenticate"), tc.wantChalng)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Bearer mytoken":     "mytoken",
		"BEARER mytoken":     "mytoken",
		"Bearer  spaced ":    "spaced",
		"Basic dXNlcjpwYXNz": "",
		"Bearer":             "",
		"token only":         "",
		"":                   "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := bearerToken(req); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
