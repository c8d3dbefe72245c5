package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/pkg/requestcontext"
)

type fakeValidator map[string]*Claims

func (f fakeValidator) ValidateToken(token string) (*Claims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRequireAuth(t *testing.T) {
	validator := fakeValidator{
		"svc": {Subject: "onboarding-web", Role: RoleService},
		"rev": {Subject: "analyst-7", Role: RoleReviewer},
	}
	var seen requestcontext.Actor
	h := RequireAuth(validator, quiet)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
		actor  requestcontext.Actor
	}{
		{"missing header", "", http.StatusUnauthorized, requestcontext.Actor{}},
		{"not bearer", "Basic abc", http.StatusUnauthorized, requestcontext.Actor{}},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, requestcontext.Actor{}},
		{"service", "Bearer svc", http.StatusNoContent, requestcontext.Actor{Type: requestcontext.ActorService, ID: "onboarding-web"}},
		{"reviewer", "Bearer rev", http.StatusNoContent, requestcontext.Actor{Type: requestcontext.ActorReviewer, ID: "analyst-7"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = requestcontext.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.actor, seen)
		})
	}
}

func TestRequireRole(t *testing.T) {
	validator := fakeValidator{
		"svc": {Subject: "onboarding-web", Role: RoleService},
		"rev": {Subject: "analyst-7", Role: RoleReviewer},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireAuth(validator, quiet)(RequireRole(quiet, RoleReviewer)(ok))

	for token, want := range map[string]int{"svc": http.StatusForbidden, "rev": http.StatusNoContent} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, token)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", got)
	assert.Equal(t, "req-123", rr.Header().Get(HeaderRequestID))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, got)
	assert.NotEqual(t, "req-123", got)
	assert.Equal(t, got, rr.Header().Get(HeaderRequestID))
}

func TestRecoveryReturns500(t *testing.T) {
	h := Recovery(quiet)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "internal_error")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "first forwarded hop", headers: map[string]string{"X-Forwarded-For": "10.0.0.7, 172.16.0.1"}, remote: "127.0.0.1:5000", want: "10.0.0.7"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 10.0.0.8 "}, remote: "127.0.0.1:5000", want: "10.0.0.8"},
		{name: "peer v4", remote: "192.168.1.4:443", want: "192.168.1.4"},
		{name: "peer v6", remote: "[::1]:8080", want: "::1"},
		{name: "no port", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}
