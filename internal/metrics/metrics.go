package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the hot paths. Outcome labels carry the error class so
// dashboards can separate contention (slot_full, already_marked) from
// bad input.
var (
	CodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labslot_otp_issued_total",
		Help: "One-time codes issued, by scope kind.",
	}, []string{"kind"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labslot_otp_redemptions_total",
		Help: "Redemption attempts, by scope kind and outcome.",
	}, []string{"kind", "outcome"})

	Bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labslot_bookings_total",
		Help: "Seat booking attempts, by outcome.",
	}, []string{"outcome"})
)
