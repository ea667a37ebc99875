package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefront/bffgw/internal/observability"
)

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	var captured string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = observability.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, w.Header().Get(HeaderXRequestID))
}

func TestRequestIDKeepsInbound(t *testing.T) {
	h := RequestID()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderXRequestID, "req-123")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "req-123", w.Header().Get(HeaderXRequestID))
}

func TestRecoveryConvertsPanic(t *testing.T) {
	h := Recovery(observability.NopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternalError, decodeEnvelope(t, w).Code)
}

func TestRecoveryPassesThrough(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestGatewayBreakerPassesHealthyTraffic(t *testing.T) {
	gb := NewGatewayBreaker(5, time.Minute)
	h := gb.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestGatewayBreakerShedsLoadAfterServerErrors(t *testing.T) {
	gb := NewGatewayBreaker(5, time.Minute)

	var handlerCalls int
	h := gb.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlerCalls++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)
	}
	require.Equal(t, 5, handlerCalls)

	// Circuit is open; the handler is no longer reached.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shed", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeCircuitOpen, decodeEnvelope(t, w).Code)
	assert.Equal(t, 5, handlerCalls)
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	rw.WriteHeader(http.StatusAccepted)
	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rw.status)
	assert.True(t, rw.wroteHeader)
	assert.Equal(t, 2, rw.bytes)
}

func TestResponseWriterDefaultsToOK(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rw.status)
}
