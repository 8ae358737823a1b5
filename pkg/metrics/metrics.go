package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	plotterd = "plotterd"

	// Job metrics
	transitionsTotal   = "job_transitions_total"
	JobStateCount      = "job_state_count"
	guardOutcomesTotal = "guard_outcomes_total"
	hookFailuresTotal  = "hook_failures_total"
	segmentsTotal      = "plot_segments_total"
	penSwapsEstimated  = "pen_swaps_estimated"

	// Labels
	fromStateLabel = "from"
	toStateLabel   = "to"
	stateLabel     = "state"
	guardLabel     = "guard"
	outcomeLabel   = "outcome"
	actionLabel    = "action"
)

var transitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: plotterd,
		Name:      transitionsTotal,
		Help:      "number of committed job state transitions",
	},
	[]string{fromStateLabel, toStateLabel},
)

var jobStateCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: plotterd,
		Name:      JobStateCount,
		Help:      "number of jobs currently in each state",
	},
	[]string{stateLabel},
)

var guardOutcomesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: plotterd,
		Name:      guardOutcomesTotal,
		Help:      "guard check outcomes per guard",
	},
	[]string{guardLabel, outcomeLabel},
)

var hookFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: plotterd,
		Name:      hookFailuresTotal,
		Help:      "number of failed or timed out hook executions",
	},
	[]string{actionLabel},
)

var segmentsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: plotterd,
		Name:      segmentsTotal,
		Help:      "number of path segments sent to the device",
	},
)

var penSwapsEstimatedMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: plotterd,
		Name:      penSwapsEstimated,
		Help:      "estimated pen swaps per planned job",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
	},
)

func IncreaseTransitionsMetric(from, to string) {
	transitionsTotalMetric.With(prometheus.Labels{fromStateLabel: from, toStateLabel: to}).Inc()
}

func UpdateJobStateCountMetric(state string, count int) {
	jobStateCountMetric.With(prometheus.Labels{stateLabel: state}).Set(float64(count))
}

func IncreaseGuardOutcomesMetric(guard, outcome string) {
	guardOutcomesTotalMetric.With(prometheus.Labels{guardLabel: guard, outcomeLabel: outcome}).Inc()
}

func IncreaseHookFailuresMetric(action string) {
	hookFailuresTotalMetric.With(prometheus.Labels{actionLabel: action}).Inc()
}

func IncreaseSegmentsMetric() {
	segmentsTotalMetric.Inc()
}

func ObservePenSwapsEstimatedMetric(swaps int) {
	penSwapsEstimatedMetric.Observe(float64(swaps))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(transitionsTotalMetric)
	prometheus.MustRegister(jobStateCountMetric)
	prometheus.MustRegister(guardOutcomesTotalMetric)
	prometheus.MustRegister(hookFailuresTotalMetric)
	prometheus.MustRegister(segmentsTotalMetric)
	prometheus.MustRegister(penSwapsEstimatedMetric)
}

type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}
