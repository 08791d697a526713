package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Classified.WithLabelValues("short").Inc()
	m.Classified.WithLabelValues("short").Inc()
	m.RelayCalls.WithLabelValues("ok").Inc()
	m.Scores.Observe(88)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classified.WithLabelValues("short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayCalls.WithLabelValues("ok")))

	count, err := testutil.GatherAndCount(reg, "ytfilter_items_classified_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A nil registerer must not collide with the default registry
	assert.NotPanics(t, func() { New(nil); New(nil) })
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Passes.Inc()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, zap.NewNop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "ytfilter_passes_total 1")

	cancel()
	assert.NoError(t, <-done)
}
