package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSweep(time.Now(), 5)
	m.NotificationSent(3)
	m.NotificationSent(3)
	m.PublishFailed(0)
	m.Purchase("ios", "verified")
	m.TrialStarted()
	m.Transition("trial_expired")
	m.Transition("")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweeps))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.usersChecked))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.notificationsSent.WithLabelValues("3")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishFailures.WithLabelValues("0")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.purchases.WithLabelValues("ios", "verified")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.trialsStarted))
	assert.Equal(t, 1, testutil.CollectAndCount(m.transitions))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSweep(time.Now(), 1)
		m.NotificationSent(1)
		m.PublishFailed(1)
		m.Purchase("android", "duplicate")
		m.TrialStarted()
		m.Transition("trial_expired")
	})
}
