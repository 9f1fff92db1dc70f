// Package metrics описывает метрики Prometheus подсистемы подписок.
// Все методы безопасно вызывать на nil-указателе: в тестах метрики не нужны.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "premium"

// Metrics набор коллекторов сервиса.
type Metrics struct {
	sweeps            prometheus.Counter
	sweepDuration     prometheus.Histogram
	usersChecked      prometheus.Counter
	notificationsSent *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	purchases         *prometheus.CounterVec
	trialsStarted     prometheus.Counter
	transitions       *prometheus.CounterVec
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_sweeps_total",
			Help:      "Number of trial expiry sweeps.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trial_sweep_duration_seconds",
			Help:      "Duration of a trial expiry sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		usersChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_users_checked_total",
			Help:      "Trial users examined by sweeps.",
		}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_notifications_sent_total",
			Help:      "Trial milestone notifications sent.",
		}, []string{"milestone"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_notification_publish_failures_total",
			Help:      "Trial milestone notifications that failed to publish.",
		}, []string{"milestone"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchase verifications by platform and result.",
		}, []string{"platform", "result"}),
		trialsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_started_total",
			Help:      "Trials started.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Lazily detected subscription state transitions.",
		}, []string{"transition"}),
	}
	reg.MustRegister(
		m.sweeps,
		m.sweepDuration,
		m.usersChecked,
		m.notificationsSent,
		m.publishFailures,
		m.purchases,
		m.trialsStarted,
		m.transitions,
	)
	return m
}

// ObserveSweep учитывает завершённый проход планировщика.
func (m *Metrics) ObserveSweep(started time.Time, usersChecked int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.sweepDuration.Observe(time.Since(started).Seconds())
	m.usersChecked.Add(float64(usersChecked))
}

// NotificationSent учитывает отправленное уведомление.
func (m *Metrics) NotificationSent(milestone int) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(strconv.Itoa(milestone)).Inc()
}

// PublishFailed учитывает неудачную публикацию уведомления.
func (m *Metrics) PublishFailed(milestone int) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(strconv.Itoa(milestone)).Inc()
}

// Purchase учитывает результат проверки покупки: "verified" или "duplicate".
func (m *Metrics) Purchase(platform, result string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(platform, result).Inc()
}

// TrialStarted учитывает запуск пробного периода.
func (m *Metrics) TrialStarted() {
	if m == nil {
		return
	}
	m.trialsStarted.Inc()
}

// Transition учитывает обнаруженный переход состояния подписки.
func (m *Metrics) Transition(name string) {
	if m == nil || name == "" {
		return
	}
	m.transitions.WithLabelValues(name).Inc()
}
