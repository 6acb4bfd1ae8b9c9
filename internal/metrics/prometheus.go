package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coaching_chat_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"persona"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_chat_total",
			Help: "Total chat turns processed",
		},
		[]string{"persona", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model"},
	)

	LLMCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_llm_cost_usd",
			Help: "Estimated LLM API cost in USD",
		},
		[]string{"model"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coaching_confidence_score",
			Help:    "Response confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coaching_retrieval_results_count",
			Help:    "Number of training chunks returned per search",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coaching_index_chunks_total",
			Help: "Chunks in the active retrieval index",
		},
	)

	IndexVocabulary = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coaching_index_vocabulary_size",
			Help: "Vocabulary size of the active retrieval index",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	EscalationsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_escalations_raised_total",
			Help: "Total escalations raised",
		},
		[]string{"type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coaching_documents_processed_total",
			Help: "Total training documents processed",
		},
	)

	UsageDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coaching_usage_denied_total",
			Help: "Total chat turns denied by the usage gate",
		},
		[]string{"feature"},
	)
)

func Init() {
	prometheus.MustRegister(ChatDuration)
	prometheus.MustRegister(ChatTotal)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMCost)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(IndexChunks)
	prometheus.MustRegister(IndexVocabulary)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(EscalationsRaised)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(UsageDenied)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
