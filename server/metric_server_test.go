package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/INLOpen/nexuslake/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMetricsServer_Endpoints(t *testing.T) {
	l := openDocumentLake(t, t.TempDir())
	doc, err := NewDocument(map[string]interface{}{"id": "a"})
	require.NoError(t, err)
	_, err = l.Insert(context.Background(), doc)
	require.NoError(t, err)

	collector := NewSystemCollector(l.Dir(), time.Hour, discardLogger())
	cfg := config.Default().Debug
	srv, err := NewMetricsServer(&cfg, l, discardLogger(), collector.Collectors()...)
	require.NoError(t, err)

	code, body := get(t, srv.Handler(), "/prometheus")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "lake_inserts_total 1")
	assert.Contains(t, body, "lake_indexed_keys 1")
	assert.Contains(t, body, "system_disk_free_bytes")

	code, body = get(t, srv.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "memstats")

	code, _ = get(t, srv.Handler(), "/debug/pprof/")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsServer_DisabledEndpoints(t *testing.T) {
	cfg := config.DebugConfig{ListenAddress: "127.0.0.1:0"}
	srv, err := NewMetricsServer(&cfg, nil, discardLogger())
	require.NoError(t, err)

	for _, path := range []string{"/prometheus", "/metrics", "/debug/pprof/"} {
		code, _ := get(t, srv.Handler(), path)
		assert.Equal(t, http.StatusNotFound, code, path)
	}
}

func TestSystemCollector_StartStop(t *testing.T) {
	collector := NewSystemCollector(t.TempDir(), 10*time.Millisecond, discardLogger())
	collector.Start()
	assert.Eventually(t, func() bool {
		return collector.diskFreeBytes.Value() > 0
	}, time.Second, 10*time.Millisecond)
	collector.Stop()
	collector.Stop()
}
