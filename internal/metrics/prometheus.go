package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdesk_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdesk_confidence_score",
			Help:    "Classifier confidence per query",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdesk_escalations_total",
			Help: "Queries escalated to a human agent",
		},
	)

	RetrievalResultsCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdesk_retrieval_results_count",
			Help:    "Number of retrieval results per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"mode"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdesk_documents_ingested_total",
			Help: "Total documents ingested",
		},
		[]string{"status"},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdesk_chunks_indexed_total",
			Help: "Total chunks written to the vector index",
		},
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdesk_ingestion_duration_seconds",
			Help:    "Background ingestion duration per document",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(IngestionDuration)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
