package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricecheck_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricecheck_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})

	ItemsParsedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_items_parsed_total",
		Help: "Items parsed by rarity",
	}, []string{"rarity"})

	PriceChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_price_checks_total",
		Help: "Completed price checks by outcome (priced, scout, no_listings, invalid, error)",
	}, []string{"outcome"})

	PriceCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricecheck_price_check_duration_seconds",
		Help:    "End-to-end price check latency including trade searches",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	TradeSearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_trade_searches_total",
		Help: "Progressive search tiers run, by tier and outcome (enough, too_few, error)",
	}, []string{"tier", "outcome"})

	TradeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_trade_requests_total",
		Help: "Trade API requests by endpoint and status class",
	}, []string{"endpoint", "status"})

	TradeAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricecheck_trade_api_latency_seconds",
		Help:    "Trade API request latency by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	TradeRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_trade_rate_limited_total",
		Help: "429 responses by limiter policy",
	}, []string{"policy"})

	SearchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricecheck_search_cache_hits_total",
		Help: "Progressive search results served from the in-memory cache",
	})

	SearchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricecheck_search_cache_misses_total",
		Help: "Progressive search cache misses",
	})

	StatIDsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricecheck_stat_ids_loaded",
		Help: "Distinct modifier texts known to the active stat resolver",
	})

	TierCatalogModifiers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricecheck_tier_catalog_modifiers",
		Help: "Modifier entries in the loaded tier catalog",
	})

	ScoutRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_poe2scout_requests_total",
		Help: "poe2scout requests by outcome",
	}, []string{"outcome"})

	PriceRecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricecheck_price_records",
		Help: "Stored price history records",
	})

	ScanRecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricecheck_scan_records",
		Help: "Stored scan history records",
	})

	LearningRecordsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricecheck_learning_records",
		Help: "Stored price learning records across item classes",
	})

	HistoryRecordsPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricecheck_history_records_pruned_total",
		Help: "History records removed by the retention worker, by table",
	}, []string{"table"})
)
