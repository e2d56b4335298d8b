package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the voice call pipeline.
type CallMetrics struct {
	startedTotal   prometheus.Counter
	finalizedTotal *prometheus.CounterVec
	duration       prometheus.Histogram
	messagesTotal  *prometheus.CounterVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		startedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "casavoz",
			Subsystem: "calls",
			Name:      "started_total",
			Help:      "Total calls opened on the media stream",
		}),
		finalizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casavoz",
			Subsystem: "calls",
			Name:      "finalized_total",
			Help:      "Total calls finalized, by finalize trigger",
		}, []string{"trigger"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "casavoz",
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Finalized call duration",
			Buckets:   []float64{15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casavoz",
			Subsystem: "calls",
			Name:      "transcript_messages_total",
			Help:      "Total transcript messages recorded, by role",
		}, []string{"role"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.startedTotal, m.finalizedTotal, m.duration, m.messagesTotal)
	return m
}

func (m *CallMetrics) ObserveCallStarted() {
	if m == nil {
		return
	}
	m.startedTotal.Inc()
}

func (m *CallMetrics) ObserveCallFinalized(trigger string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.finalizedTotal.WithLabelValues(trigger).Inc()
	if durationSeconds > 0 {
		m.duration.Observe(durationSeconds)
	}
}

func (m *CallMetrics) ObserveMessage(role string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(role).Inc()
}

// AnalysisMetrics exposes counters/histograms for the analysis worker.
type AnalysisMetrics struct {
	publishedTotal prometheus.Counter
	processedTotal *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	hotLeadsTotal  prometheus.Counter
}

func NewAnalysisMetrics(reg prometheus.Registerer) *AnalysisMetrics {
	m := &AnalysisMetrics{
		publishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "casavoz",
			Subsystem: "analysis",
			Name:      "jobs_published_total",
			Help:      "Total analysis jobs published to the queue",
		}),
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "casavoz",
			Subsystem: "analysis",
			Name:      "jobs_processed_total",
			Help:      "Total analysis jobs processed, by outcome",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "casavoz",
			Subsystem: "analysis",
			Name:      "job_duration_seconds",
			Help:      "End-to-end analysis job processing time",
			Buckets:   prometheus.DefBuckets,
		}),
		hotLeadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "casavoz",
			Subsystem: "analysis",
			Name:      "hot_leads_total",
			Help:      "Total conversations graded caliente",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.publishedTotal, m.processedTotal, m.jobDuration, m.hotLeadsTotal)
	return m
}

func (m *AnalysisMetrics) ObserveJobPublished() {
	if m == nil {
		return
	}
	m.publishedTotal.Inc()
}

func (m *AnalysisMetrics) ObserveJobProcessed(status string, seconds float64) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(status).Inc()
	m.jobDuration.Observe(seconds)
}

func (m *AnalysisMetrics) ObserveHotLead() {
	if m == nil {
		return
	}
	m.hotLeadsTotal.Inc()
}
