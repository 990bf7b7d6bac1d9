package workers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"chat-relay/mocks"
	"chat-relay/observability"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/process"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestConnectionMonitor_Sample_Publishes_Gauges(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	metrics := observability.NewMetrics()
	monitor := NewConnectionMonitor(logs.GetLoggerFromLevel(slog.LevelDebug), registry, metrics, time.Minute)
	p, err := process.NewProcess(int32(os.Getpid()))
	req.NoError(err)

	// Given three registered participants
	registry.EXPECT().Len().Return(3)

	// When a snapshot is taken
	monitor.Sample(p)

	// Then the connection gauge follows the registry
	req.Equal(3.0, testutil.ToFloat64(metrics.ActiveConnections))
	req.GreaterOrEqual(testutil.ToFloat64(metrics.ProcessMemory), 0.0)
}

func TestConnectionMonitor_Stops_With_Context(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	registry.EXPECT().Len().Return(0).AnyTimes()
	monitor := NewConnectionMonitor(logs.GetLoggerFromLevel(slog.LevelDebug), registry, observability.NewMetrics(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
