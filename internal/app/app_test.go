package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/voltcart-checkout/pkg/httpmiddleware"
)

func TestCORSAllowsSupabaseClientHeaders(t *testing.T) {
	h := httpmiddleware.CORS(httpmiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: corsAllowHeaders,
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	r := httptest.NewRequest(http.MethodOptions, "/api/checkout/orders", nil)
	r.Header.Set("Origin", "https://shop.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type, idempotency-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusNoContent, w.Code)
	allowed := strings.Split(strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), ", ")
	for _, name := range strings.Split(r.Header.Get("Access-Control-Request-Headers"), ", ") {
		assert.Contains(t, allowed, name)
	}
}
