package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PlacementsTotal       *prometheus.CounterVec
	CapacityExceededTotal prometheus.Counter

	CommissionsCreatedTotal *prometheus.CounterVec
	CommissionAmountTotal   *prometheus.CounterVec

	ClawbacksTotal        *prometheus.CounterVec
	ClawbackAmountTotal   prometheus.Counter
	ClawbackDeficitTotal  prometheus.Counter
	TierUpgradesTotal     *prometheus.CounterVec
	EventPublishFailures  *prometheus.CounterVec
	JobsProcessedTotal    *prometheus.CounterVec
	JobsFailedPermanently *prometheus.CounterVec
	SweepItemsTotal       *prometheus.CounterVec
}

// New registers the engine metrics on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PlacementsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matrix_placements_total",
				Help: "Matrix placements by placement type",
			},
			[]string{"placement_type"},
		),
		CapacityExceededTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "matrix_capacity_exceeded_total",
			Help: "Registrations that found no open matrix slot within the configured depth",
		}),
		CommissionsCreatedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commissions_created_total",
				Help: "Commission records created by kind",
			},
			[]string{"kind"},
		),
		CommissionAmountTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commission_amount_total",
				Help: "Sum of created commission amounts by kind",
			},
			[]string{"kind"},
		),
		ClawbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawback_reversals_total",
				Help: "Commission reversals by clawback percent",
			},
			[]string{"percent"},
		),
		ClawbackAmountTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "clawback_amount_total",
			Help: "Sum of reversed commission amounts",
		}),
		ClawbackDeficitTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "clawback_deficit_total",
			Help: "Clawback shortfall recorded as deficit",
		}),
		TierUpgradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tier_upgrades_total",
				Help: "Tier upgrades by target tier key",
			},
			[]string{"tier"},
		),
		EventPublishFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "event_publish_failures_total",
				Help: "Events that could not be published after commit",
			},
			[]string{"topic"},
		),
		JobsProcessedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_processed_total",
				Help: "Background units by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		JobsFailedPermanently: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_failed_permanently_total",
				Help: "Background units that exhausted their retries",
			},
			[]string{"kind"},
		),
		SweepItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_items_total",
				Help: "Items handled by batch sweeps by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
}
