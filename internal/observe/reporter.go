// Package observe turns session lifecycle events into structured logs and
// Prometheus metrics.
package observe

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/iliyamo/mobile-seat-admission/internal/session"
)

// Reporter implements session.Reporter.  Fatal events are logged at error
// level together with their incident id so operators can correlate them
// with what the end user was shown.
type Reporter struct {
	log       zerolog.Logger
	decisions *prometheus.CounterVec
	reaped    *prometheus.CounterVec
	logouts   *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

var _ session.Reporter = (*Reporter)(nil)

// NewReporter creates a Reporter and registers its collectors with reg.
func NewReporter(log zerolog.Logger, reg prometheus.Registerer) *Reporter {
	r := &Reporter{
		log: log.With().Str("component", "seat_events").Logger(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seat",
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Seat admission decisions by app variant, outcome and reason",
			},
			[]string{"app_variant", "outcome", "reason"},
		),
		reaped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seat",
				Subsystem: "lifecycle",
				Name:      "reaped_total",
				Help:      "Seats deactivated for inactivity by app variant",
			},
			[]string{"app_variant"},
		),
		logouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seat",
				Subsystem: "lifecycle",
				Name:      "logouts_total",
				Help:      "Seats released by logout by app variant",
			},
			[]string{"app_variant"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seat",
				Subsystem: "provisioning",
				Name:      "failures_total",
				Help:      "Entitlement or seat store failures by operation",
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.decisions, r.reaped, r.logouts, r.failures)
	return r
}

// Report logs ev and updates the matching counter.
func (r *Reporter) Report(_ context.Context, ev session.Event) {
	variant := string(ev.AppVariant)
	switch ev.Kind {
	case session.EventAdmitted:
		r.decisions.WithLabelValues(variant, "activated", "").Inc()
		r.event(r.log.Info(), ev).Msg("seat admitted")
	case session.EventRejected:
		r.decisions.WithLabelValues(variant, "rejected", string(ev.Rejection)).Inc()
		r.event(r.log.Info(), ev).Str("rejection", string(ev.Rejection)).Msg("seat admission rejected")
	case session.EventFatal:
		r.decisions.WithLabelValues(variant, "fatal", string(ev.Violation)).Inc()
		r.event(r.log.Error(), ev).
			Str("violation", string(ev.Violation)).
			Str("incident_id", ev.IncidentID).
			Str("detail", ev.Detail).
			Msg("seat state invariant violated")
	case session.EventProvisioningFailed:
		r.failures.WithLabelValues(ev.Detail).Inc()
		r.event(r.log.Error(), ev).Err(ev.Err).Str("operation", ev.Detail).Msg("seat provisioning failed")
	case session.EventLoggedOut:
		r.logouts.WithLabelValues(variant).Inc()
		r.event(r.log.Info(), ev).Msg("seat released by logout")
	case session.EventReaped:
		r.reaped.WithLabelValues(variant).Inc()
		r.event(r.log.Info(), ev).Msg("seat deactivated for inactivity")
	default:
		r.event(r.log.Warn(), ev).Str("kind", string(ev.Kind)).Msg("unknown seat event")
	}
}

func (r *Reporter) event(e *zerolog.Event, ev session.Event) *zerolog.Event {
	return e.
		Str("app_variant", string(ev.AppVariant)).
		Uint64("user_id", ev.UserID).
		Uint64("customer_id", ev.CustomerID).
		Str("device_id", ev.DeviceID)
}
