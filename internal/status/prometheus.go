package status

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink mirrors a Snapshot's fields as gauges (the bag file
// name and per-topic TotalBytes are not exported), in the
// same promauto/prometheus.NewGaugeVec style already used for this
// codebase's other metric families.
type PrometheusSink struct {
	statusGauge    prometheus.Gauge
	bytesWritten   prometheus.Gauge
	freeBytes      prometheus.Gauge
	aggregateBW    prometheus.Gauge

	topicBandwidth *prometheus.GaugeVec
	topicRate      *prometheus.GaugeVec
	topicTotalMsgs *prometheus.GaugeVec
	topicCurBagMsgs *prometheus.GaugeVec
	topicPublishers *prometheus.GaugeVec
}

// RecordingStatusValue exposes RecordingStatus as a numeric gauge
// value, following the common Prometheus convention of encoding an
// enum-like status as a small integer.
const (
	RecordingStatusPaused  = 0
	RecordingStatusRunning = 1
)

// NewPrometheusSink registers a fresh set of gauges on reg and returns a
// sink that publishes into them.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := prometheus.WrapRegistererWithPrefix("bagrecorder_", reg)

	s := &PrometheusSink{
		statusGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "status",
			Help: "Current recorder status (0=paused, 1=running)",
		}),
		bytesWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "total_bytes_written",
			Help: "Total bytes written to the current bag segment",
		}),
		freeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "free_bytes",
			Help: "Free bytes on the filesystem backing the bag directory",
		}),
		aggregateBW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregate_bandwidth_bytes_per_second",
			Help: "Sum of per-topic bandwidth estimates",
		}),
		topicBandwidth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topic_bandwidth_bytes_per_second",
			Help: "Per-topic smoothed bandwidth estimate",
		}, []string{"topic"}),
		topicRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topic_rate_hz",
			Help: "Per-topic smoothed message rate estimate",
		}, []string{"topic"}),
		topicTotalMsgs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topic_total_messages",
			Help: "Per-topic total messages accepted",
		}, []string{"topic"}),
		topicCurBagMsgs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topic_messages_in_current_bag",
			Help: "Per-topic messages written into the current bag segment",
		}, []string{"topic"}),
		topicPublishers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "topic_publishers",
			Help: "Per-topic polled publisher count",
		}, []string{"topic"}),
	}

	factory.MustRegister(
		s.statusGauge, s.bytesWritten, s.freeBytes, s.aggregateBW,
		s.topicBandwidth, s.topicRate, s.topicTotalMsgs, s.topicCurBagMsgs, s.topicPublishers,
	)
	return s
}

func (s *PrometheusSink) Publish(snap Snapshot) {
	statusValue := float64(RecordingStatusPaused)
	if snap.Status == Running {
		statusValue = RecordingStatusRunning
	}
	s.statusGauge.Set(statusValue)
	s.bytesWritten.Set(float64(snap.TotalBytesWritten))
	s.freeBytes.Set(float64(snap.FreeBytes))
	s.aggregateBW.Set(snap.AggregateBandwidth)

	for _, t := range snap.PerTopic {
		s.topicBandwidth.WithLabelValues(t.Name).Set(t.Bandwidth)
		s.topicRate.WithLabelValues(t.Name).Set(t.Rate)
		s.topicTotalMsgs.WithLabelValues(t.Name).Set(float64(t.TotalMessages))
		s.topicCurBagMsgs.WithLabelValues(t.Name).Set(float64(t.MessagesInCurrentBag))
		s.topicPublishers.WithLabelValues(t.Name).Set(float64(t.Publishers))
	}
}
