package observability

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordToolExecution(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.toolExecutionTotal.WithLabelValues("get_weather", "success"))

	RecordToolExecution("get_weather", 5*time.Millisecond, true)

	after := testutil.ToFloat64(m.toolExecutionTotal.WithLabelValues("get_weather", "success"))
	assert.Equal(t, before+1, after)
}

func TestRecordPublish(t *testing.T) {
	m := getMetrics()
	beforeBytes := testutil.ToFloat64(m.publishBytes.WithLabelValues("livekit"))

	RecordPublish("livekit", "frontend", 42, true)
	RecordPublish("livekit", "frontend", 100, false)

	assert.Equal(t, beforeBytes+42, testutil.ToFloat64(m.publishBytes.WithLabelValues("livekit")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.publishTotal.WithLabelValues("livekit", "frontend", "error")), float64(1))
}

func TestRecordPublishSkipped(t *testing.T) {
	m := getMetrics()
	before := testutil.ToFloat64(m.publishSkippedTotal.WithLabelValues("send_notification"))

	RecordPublishSkipped("send_notification")

	assert.Equal(t, before+1, testutil.ToFloat64(m.publishSkippedTotal.WithLabelValues("send_notification")))
}

func TestMetricsHandlerExposesNamespace(t *testing.T) {
	RecordTurn("text", time.Second, true)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ranya_voice_turn_total"))
}

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	require.NoError(t, InitAuditLogger(path))

	RecordToolAudit(context.Background(), "search_documents", "job-1", "success", map[string]interface{}{
		"duration_ms": 3,
	})
	RecordPublishAudit(context.Background(), "frontend", "job-1", "skipped", nil)
	require.NoError(t, GetAuditLogger().Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "tool", first["type"])
	assert.Equal(t, "execute:search_documents", first["action"])
	assert.Equal(t, "job-1", first["actor"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "publish:frontend", second["action"])
	assert.Equal(t, "skipped", second["status"])
}
