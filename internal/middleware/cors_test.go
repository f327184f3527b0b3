package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifeos/los-coach/internal/identity"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func preflight(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodOptions, "/api/coach/chat", nil)
	r.Header.Set("Origin", origin)
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", "Content-Type, "+identity.SessionHeaderName)
	return r
}

func TestCORS_ExplicitOriginAllowsCredentials(t *testing.T) {
	t.Parallel()
	h := CORS([]string{"https://los.example"})(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, preflight("https://los.example"))

	assert.Equal(t, "https://los.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_WildcardNeverAllowsCredentials(t *testing.T) {
	t.Parallel()
	h := CORS([]string{"*"})(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, preflight("https://anywhere.example"))

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	t.Parallel()
	h := CORS([]string{"https://los.example"})(ok)

	r := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	r.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
