package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"x": 1}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithDetail(c, http.StatusBadGateway, ErrSubmissionFailed, "exam already closed")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)

	var ok Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.Nil(t, ok.Error)
	assert.Equal(t, "req-1", ok.Metadata.RequestID)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("a", 200))
	r.ServeHTTP(w, req)

	var fail Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fail))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.NotNil(t, fail.Error)
	assert.Equal(t, ErrSubmissionFailed, fail.Error.Code)
	assert.Equal(t, "exam already closed", fail.Error.Detail)
	assert.Len(t, fail.Metadata.RequestID, 36)
}
