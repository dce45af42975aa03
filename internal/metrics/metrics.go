package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedback_connections_active",
		Help: "Currently registered feedback connections",
	})

	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_connections_total",
		Help: "Connection attempts by outcome",
	}, []string{"outcome"})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_messages_total",
		Help: "Inbound messages by kind",
	}, []string{"kind"})

	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_protocol_errors_total",
		Help: "Inbound messages rejected with an error feedback",
	})

	ProcessingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedback_processing_errors_total",
		Help: "Failures while computing metrics, converted to error feedback",
	})

	FeedbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedback_assembly_duration_seconds",
		Help:    "Time to assemble one speech_analysis message, including augmentation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	})

	Augmentations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedback_augmentations_total",
		Help: "AI augmentation attempts by outcome",
	}, []string{"outcome"})
)
