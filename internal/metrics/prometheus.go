package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aird"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg          *prom.Registry
	mergeCycles  *prom.CounterVec
	commands     *prom.CounterVec
	commandTime  *prom.HistogramVec
	autoAdjusts  *prom.CounterVec
	pollDuration prom.Histogram
	pollFailures prom.Counter
	aqi          *prom.GaugeVec
	humidity     *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers the metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		mergeCycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "merge_cycles_total",
			Help:      "Applied non-empty merge cycles per device",
		}, []string{"device"}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Resolved attribute writes by outcome",
		}, []string{"device", "key", "origin", "outcome"}),
		commandTime: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Time from proposal to resolution",
			Buckets:   prom.DefBuckets,
		}, []string{"device"}),
		autoAdjusts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "auto_adjustments_total",
			Help:      "Automatic fan level changes by direction",
		}, []string{"device", "direction"}),
		pollDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of remote state pulls",
			Buckets:   prom.DefBuckets,
		}),
		pollFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Failed remote state pulls",
		}),
		aqi: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "aqi",
			Help:      "Derived air quality index",
		}, []string{"device"}),
		humidity: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last reported relative humidity",
		}, []string{"device"}),
	}
	reg.MustRegister(pr.mergeCycles, pr.commands, pr.commandTime, pr.autoAdjusts,
		pr.pollDuration, pr.pollFailures, pr.aqi, pr.humidity)
	return pr
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) IncMergeCycle(device string) {
	p.mergeCycles.WithLabelValues(device).Inc()
}

func (p *PrometheusRecorder) ObserveCommand(device, key, origin, outcome string, latency time.Duration) {
	p.commands.WithLabelValues(device, key, origin, outcome).Inc()
	p.commandTime.WithLabelValues(device).Observe(latency.Seconds())
}

func (p *PrometheusRecorder) IncAutoAdjust(device, direction string) {
	p.autoAdjusts.WithLabelValues(device, direction).Inc()
}

func (p *PrometheusRecorder) ObservePoll(d time.Duration, err error) {
	p.pollDuration.Observe(d.Seconds())
	if err != nil {
		p.pollFailures.Inc()
	}
}

func (p *PrometheusRecorder) SetAQI(device string, idx int) {
	p.aqi.WithLabelValues(device).Set(float64(idx))
}

func (p *PrometheusRecorder) SetHumidity(device string, v float64) {
	p.humidity.WithLabelValues(device).Set(v)
}
