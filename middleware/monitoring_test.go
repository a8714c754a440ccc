package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorMiddleware_LabelsByRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(MonitorMiddleware)
	r.HandleFunc("/api/v1/challenges/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := httpRequestsTotal.WithLabelValues("/api/v1/challenges/{id}/status", http.MethodGet, http.StatusText(http.StatusTeapot))
	before := promtest.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/challenges/"+id+"/status", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, before+3, promtest.ToFloat64(counter))
}

func TestRouteTemplate_Unmatched(t *testing.T) {
	assert.Equal(t, "unmatched", routeTemplate(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}

func TestInitPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	InitPrometheus(reg)
	assert.Panics(t, func() { InitPrometheus(reg) })
}

func TestBasicAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		reqUser    string
		reqPass    string
		code       int
	}{
		{"valid", "prom", "secret", true, "prom", "secret", http.StatusOK},
		{"wrong password", "prom", "secret", true, "prom", "guess", http.StatusUnauthorized},
		{"no credentials", "prom", "secret", false, "", "", http.StatusUnauthorized},
		{"unconfigured", "", "", true, "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.reqUser, tt.reqPass)
			}
			rec := httptest.NewRecorder()
			BasicAuthMiddleware(tt.user, tt.pass)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
			}
		})
	}
}

func TestPprofSecurityMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	serve := func(secret, header string) int {
		req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
		if header != "" {
			req.Header.Set("X-Pprof-Secret", header)
		}
		rec := httptest.NewRecorder()
		PprofSecurityMiddleware(secret)(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve("s3cret", "s3cret"))
	assert.Equal(t, http.StatusForbidden, serve("s3cret", "nope"))
	assert.Equal(t, http.StatusForbidden, serve("", ""))
}
