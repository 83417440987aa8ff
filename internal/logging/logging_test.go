package logging

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/finesssee/streambridge/internal/config"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_KeepsMostRecent(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		rb.Write(LogEntry{Message: msg})
	}

	assert.Equal(t, 3, rb.Len())
	got := rb.Entries(0)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Message)
	assert.Equal(t, "e", got[2].Message)

	last := rb.Entries(2)
	require.Len(t, last, 2)
	assert.Equal(t, "d", last[0].Message)
	assert.Equal(t, "e", last[1].Message)
}

func TestRingBuffer_Fire(t *testing.T) {
	rb := NewRingBuffer(10)
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(rb)

	logger.WithField("request_id", "r1").Warn("upstream slow")

	got := rb.Entries(0)
	require.Len(t, got, 1)
	assert.Equal(t, "warn", got[0].Level)
	assert.Equal(t, "upstream slow", got[0].Message)
	assert.Equal(t, "r1", got[0].Fields["request_id"])
}

func TestConfigureLogOutput_File(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{LoggingToFile: true, LogDir: dir, LogsMaxSizeMB: 1}
	log.SetLevel(log.InfoLevel)

	require.NoError(t, ConfigureLogOutput(cfg))
	defer func() {
		require.NoError(t, ConfigureLogOutput(&config.Config{}))
	}()

	log.Info("written to file")
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestConfigureLogOutput_NilConfig(t *testing.T) {
	assert.Error(t, ConfigureLogOutput(nil))
}

func TestGinLogrusLogger_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinLogrusLogger())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = c.Request.Header.Get("X-Request-Id")
		c.Status(http.StatusNoContent)
	})
	r.GET("/quiet", func(c *gin.Context) {
		SkipGinRequestLogging(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, w.Header().Get("X-Request-Id"), seen, "generated id must be visible to handlers")

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "given")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "given", w.Header().Get("X-Request-Id"))

	before := Recent.Len()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quiet", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before, Recent.Len())
}

func TestGinLogrusRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinLogrusRecovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"internal_error"`)
}

func TestSetupBaseLogger_Idempotent(t *testing.T) {
	SetupBaseLogger()
	SetupBaseLogger()
	log.SetLevel(log.InfoLevel)
	log.Info("after setup")
	entries := Recent.Entries(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "after setup", entries[0].Message)
	assert.WithinDuration(t, time.Now(), entries[0].Time, time.Minute)
}
