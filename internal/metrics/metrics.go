// Package metrics exposes Prometheus counters for the OTP login flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels shared by the login and verify counters.
const (
	ResultOK          = "ok"
	ResultRateLimited = "rate_limited"
	ResultInvalid     = "invalid"
	ResultBadRequest  = "bad_request"
	ResultError       = "error"
)

// Recorder is what the OTP engine and delivery workers report to.
type Recorder interface {
	RecordLoginRequest(result string)
	RecordVerification(result string)
	RecordDeliveryFailure()
	RecordOutboxRelayed(n int)
	RecordOutboxDepth(n int64)
	RecordUserCreated()
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	loginRequests    *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	outboxRelayed    prometheus.Counter
	outboxDepth      prometheus.Gauge
	usersCreated     prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_login_requests_total",
			Help: "OTP login requests by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts by result.",
		}, []string{"result"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otp_delivery_failures_total",
			Help: "Delivery messages that could not be published.",
		}),
		outboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otp_outbox_relayed_total",
			Help: "Delivery messages re-published from the outbox.",
		}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "otp_outbox_depth",
			Help: "Delivery messages waiting in the outbox after the last relay pass.",
		}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "otp_users_created_total",
			Help: "Users created on their first successful verification.",
		}),
	}

	reg.MustRegister(
		c.loginRequests,
		c.verifications,
		c.deliveryFailures,
		c.outboxRelayed,
		c.outboxDepth,
		c.usersCreated,
	)
	return c
}

func (c *Collector) RecordLoginRequest(result string) {
	c.loginRequests.WithLabelValues(result).Inc()
}

func (c *Collector) RecordVerification(result string) {
	c.verifications.WithLabelValues(result).Inc()
}

func (c *Collector) RecordDeliveryFailure() { c.deliveryFailures.Inc() }

func (c *Collector) RecordOutboxRelayed(n int) { c.outboxRelayed.Add(float64(n)) }

func (c *Collector) RecordOutboxDepth(n int64) { c.outboxDepth.Set(float64(n)) }

func (c *Collector) RecordUserCreated() { c.usersCreated.Inc() }

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used when no collector is wired.
type Nop struct{}

func (Nop) RecordLoginRequest(string) {}
func (Nop) RecordVerification(string) {}
func (Nop) RecordDeliveryFailure()    {}
func (Nop) RecordOutboxRelayed(int)   {}
func (Nop) RecordOutboxDepth(int64)   {}
func (Nop) RecordUserCreated()        {}
