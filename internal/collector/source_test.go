package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPSource_Sample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/printer-7/telemetry", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"timestamp": "2026-03-01T10:00:00Z",
			"status": "printing",
			"toner_level": 8.5,
			"paper_level": 60,
			"temperature": 42.1,
			"cpu_usage": 15,
			"memory_usage": 33,
			"queue_depth": 2,
			"error_count": 1
		}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, time.Second, zap.NewNop())
	sample, err := src.Sample(context.Background(), models.Device{DeviceID: "printer-7"})
	require.NoError(t, err)
	assert.Equal(t, "printer-7", sample.DeviceID)
	assert.Equal(t, models.StatusPrinting, sample.Status)
	assert.Equal(t, 8.5, sample.TonerLevel)
	assert.Equal(t, 2, sample.QueueDepth)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), sample.Timestamp)
}

func TestHTTPSource_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, time.Second, zap.NewNop())
	_, err := src.Sample(context.Background(), models.Device{DeviceID: "missing"})
	assert.Error(t, err)
}
