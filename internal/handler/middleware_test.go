package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_PreservesFlusher(t *testing.T) {
	var flushable bool
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		flushable = ok
		_, _ = w.Write([]byte("chunk"))
		if ok {
			f.Flush()
		}
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(rec, req)

	require.True(t, flushable)
	assert.True(t, rec.Flushed)
	assert.Equal(t, "chunk", rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(ProcessTimeHeader))
}

func TestRequestID_ResponseController(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		assert.NoError(t, http.NewResponseController(w).Flush())
		assert.NotEmpty(t, RequestIDFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, rec.Flushed)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(ProcessTimeHeader))
}
