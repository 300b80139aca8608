// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.FramesSent.WithLabelValues("ADD").Inc()
	m.FramesSent.WithLabelValues("ADD").Inc()
	m.QueueFull.Inc()
	m.QueueDepth.Set(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("ADD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueFull))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Acks.WithLabelValues("SUCCESS").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `usbwall_acks_total{result="SUCCESS"} 1`)
	assert.Contains(t, string(body), "usbwall_queue_full_total 0")
	assert.Contains(t, string(body), "# HELP usbwall_queue_full_total Queue-full rejections of received messages; the receiver retries them")
}
