package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-engine/internal/common/logging"
)

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.DebugLevel,
		Format: logging.FormatJSON,
		Output: &buf,
	})
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(Logging(logger))
	router.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {}).Methods("GET")
	router.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods("GET")

	t.Run("generates a request id", func(t *testing.T) {
		buf.Reset()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest("GET", "/ok?x=1", nil))

		id := rr.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, id, entry["request_id"])
		assert.Equal(t, "/ok", entry["path"])
		assert.Equal(t, "x=1", entry["query"])
		assert.Equal(t, float64(200), entry["status"])
	})

	t.Run("keeps the caller's request id and warns on 4xx", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest("GET", "/missing", nil)
		req.Header.Set(RequestIDHeader, "abc")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, "abc", rr.Header().Get(RequestIDHeader))
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, float64(404), entry["status"])
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.lastCleanup = now

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token refilled")
	assert.Equal(t, 2, rl.Clients())

	now = now.Add(idleLimiter + time.Second)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Clients(), "idle clients are dropped")
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware(ClientKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader("{}"))
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusAccepted, send("10.0.0.1:1234").Code)
	rr := send("10.0.0.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "same host, other port")
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusAccepted, send("10.0.0.2:1234").Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	assert.Equal(t, "192.168.1.5", ClientKey(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", ClientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientKey(req))
}
