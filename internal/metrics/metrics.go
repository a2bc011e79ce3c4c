package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xao_referral_verifications_total",
		Help: "Referral verifications, labelled by outcome (verified, flagged, failed).",
	}, []string{"outcome"})

	VerificationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xao_referral_verification_errors_total",
		Help: "Failed referral verifications, labelled by error kind.",
	}, []string{"kind"})

	VerificationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xao_referral_verification_retries_total",
		Help: "Model calls repeated after a retryable failure.",
	})

	VerificationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xao_referral_verification_duration_ms",
		Help:    "End-to-end verification latency in milliseconds, including retries.",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
	}, []string{"provider"})

	AssetsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xao_assets_generated_total",
		Help: "Generated static assets, labelled by kind (qr, diagram).",
	}, []string{"kind"})

	FeedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xao_feed_clients",
		Help: "Connected live-feed WebSocket clients.",
	})
)
