package prometheus

import (
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// typedDropSource is implemented by *authcore.Engine.
type typedDropSource interface {
	AuditDroppedByType() map[string]uint64
}

type counterDesc struct {
	id   authcore.MetricID
	desc *prom.Desc
}

// Collector implements prometheus.Collector over an engine snapshot.
type Collector struct {
	source metricsSource

	counters      []counterDesc
	histograms    []counterDesc
	auditDropped  *prom.Desc
	droppedByType *prom.Desc
	loginRatio    *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector reads from engine.
func NewCollector(engine *authcore.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource reads from any snapshot source.
func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:        source,
		counters:      make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms:    make([]counterDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped:  prom.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
		droppedByType: prom.NewDesc(internaldefs.AuditDroppedByTypeName, internaldefs.AuditDroppedByTypeHelp, []string{internaldefs.AuditDroppedByTypeLabel}, nil),
		loginRatio:    prom.NewDesc(internaldefs.LoginSuccessRatioName, internaldefs.LoginSuccessRatioHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.auditDropped
	ch <- c.droppedByType
	ch <- c.loginRatio
}

// Collect implements prometheus.Collector. Disabled engine metrics produce
// no engine series; the audit drop counter is always reported.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	ch <- prom.MustNewConstMetric(c.auditDropped, prom.CounterValue, float64(c.source.AuditDropped()))
	if typed, ok := c.source.(typedDropSource); ok {
		for eventType, n := range typed.AuditDroppedByType() {
			ch <- prom.MustNewConstMetric(c.droppedByType, prom.CounterValue, float64(n), eventType)
		}
	}

	if len(snapshot.Counters) == 0 {
		return
	}

	for _, d := range c.counters {
		ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(snapshot.Counters[d.id]))
	}
	ch <- prom.MustNewConstMetric(c.loginRatio, prom.GaugeValue, snapshot.LoginSuccessRate())

	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// Snapshots carry bucket counts only, so the sum is reported as zero.
		ch <- prom.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], 0, buckets)
	}
}

// Register adds the collector to reg.
func (c *Collector) Register(reg prom.Registerer) error {
	return reg.Register(c)
}

// Handler serves the collector from a private registry.
func (c *Collector) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
