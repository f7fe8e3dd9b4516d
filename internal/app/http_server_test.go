package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cafe/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/cafe/internal/health"
)

// startOpsServer поднимает ops-сервер с проверками, собранными как в Run.
func startOpsServer(t *testing.T, cfg Config, deps *runtimeDependencies, eventsEnabled bool) string {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := startMetricsServer(ctx, addr, log.WithField("test", "ops-http"), newHealthHandler(cfg, deps, eventsEnabled))
	require.NotNil(t, srv)

	base := "http://" + addr
	waitForServer(t, base+"/livez")
	return base
}

func waitForServer(t *testing.T, url string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond, "ops server did not start on %s", url)
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func healthReport(t *testing.T, base string) (int, healthcheck.Response) {
	t.Helper()
	status, body := httpGet(t, base+"/healthz")

	var report healthcheck.Response
	require.NoError(t, json.Unmarshal([]byte(body), &report), body)
	return status, report
}

func enqueueSaleEvents(t *testing.T, repo domain.OutboxRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Enqueue(domain.OutboxMessage{
			AggregateType: "sale",
			AggregateID:   fmt.Sprintf("sale-%d", i),
			EventType:     "sale.created",
			Payload:       []byte(`{}`),
		})
		require.NoError(t, err)
	}
}

func TestOpsServer_MemoryStorageWithoutEvents(t *testing.T) {
	base := startOpsServer(t, Config{}, memoryDependencies(), false)

	status, body := httpGet(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")

	status, body = httpGet(t, base+"/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	status, body = httpGet(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body)

	status, report := healthReport(t, base)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, healthcheck.StatusHealthy, report.Status)
	assert.Contains(t, report.Checks, "storage")
	assert.NotContains(t, report.Checks, "outbox", "outbox is only checked when events are published")
	assert.NotContains(t, report.Checks, "redis")
}

func TestOpsServer_OutboxBacklogDegradesButStaysReady(t *testing.T) {
	deps := memoryDependencies()
	enqueueSaleEvents(t, deps.outboxRepo, 3)

	base := startOpsServer(t, Config{OutboxMaxPending: 2}, deps, true)

	status, report := healthReport(t, base)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, healthcheck.StatusDegraded, report.Status)
	require.Contains(t, report.Checks, "outbox")
	assert.Equal(t, healthcheck.StatusDegraded, report.Checks["outbox"].Status)
	assert.Contains(t, report.Checks["outbox"].Message, "backlog 3 exceeds 2")

	status, body := httpGet(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body)
}

func TestOpsServer_OutboxWithinThresholdIsHealthy(t *testing.T) {
	deps := memoryDependencies()
	enqueueSaleEvents(t, deps.outboxRepo, 2)

	base := startOpsServer(t, Config{OutboxMaxPending: 2}, deps, true)

	_, report := healthReport(t, base)
	assert.Equal(t, healthcheck.StatusHealthy, report.Status)
	assert.Equal(t, healthcheck.StatusHealthy, report.Checks["outbox"].Status)
}

func TestOpsServer_UnreachableStorageIsNotReady(t *testing.T) {
	deps := memoryDependencies()
	deps.storageChecker = healthcheck.NewPingChecker("postgres", 0, func(context.Context) error {
		return errors.New("connection refused")
	})
	deps.redisChecker = healthcheck.NewSimpleChecker("redis", func() error { return nil })

	base := startOpsServer(t, Config{}, deps, false)

	status, body := httpGet(t, base+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "not ready", body)

	status, report := healthReport(t, base)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, healthcheck.StatusUnhealthy, report.Status)
	assert.True(t, strings.Contains(report.Checks["storage"].Message, "connection refused"))
	assert.Equal(t, healthcheck.StatusHealthy, report.Checks["redis"].Status)
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	ctx, cancel := context.WithCancel(context.Background())

	startMetricsServer(ctx, addr, log.WithField("test", "ops-shutdown"), newHealthHandler(Config{}, memoryDependencies(), false))
	url := "http://" + addr + "/livez"
	waitForServer(t, url)

	cancel()

	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return true
		}
		_ = resp.Body.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond, "server should be stopped after context cancellation")
}

func TestShutdownHTTP_NilServer(_ *testing.T) {
	// Не должно паниковать
	shutdownHTTP(nil, log.WithField("test", "http-nil"))
}

func TestShutdownHTTP_WithServer(t *testing.T) {
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(healthcheck.LivenessHandler)}
	go func() {
		_ = srv.ListenAndServe()
	}()

	url := "http://" + addr + "/"
	waitForServer(t, url)

	shutdownHTTP(srv, log.WithField("test", "http-shutdown-func"))

	_, err := http.Get(url)
	assert.Error(t, err, "server should be stopped after shutdownHTTP")
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
