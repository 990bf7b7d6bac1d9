package observability

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Exposition(t *testing.T) {
	req := require.New(t)
	metrics := NewMetrics()

	metrics.MessagesDelivered.WithLabelValues(DeliveryReplay).Inc()
	metrics.MessagesDelivered.WithLabelValues(DeliveryReplay).Inc()
	metrics.AuthFailures.WithLabelValues("expired").Inc()

	req.Equal(float64(2), testutil.ToFloat64(metrics.MessagesDelivered.WithLabelValues(DeliveryReplay)))

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	req.True(strings.Contains(body, `chat_relay_auth_failures_total{reason="expired"} 1`))
	req.True(strings.Contains(body, "go_goroutines"))
}

func TestMetrics_Independent_Registries(t *testing.T) {
	req := require.New(t)
	first, second := NewMetrics(), NewMetrics()

	first.MessagesSent.Inc()

	req.Equal(float64(1), testutil.ToFloat64(first.MessagesSent))
	req.Equal(float64(0), testutil.ToFloat64(second.MessagesSent))
}
